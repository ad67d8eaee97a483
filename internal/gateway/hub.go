// Package gateway streams the live trader's bar and fill events to
// dashboard clients over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/live"
	"github.com/DC0618/nvda-rsi-20-65/internal/markethours"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	"github.com/gorilla/websocket"
)

// Envelope types.
const (
	TypeBar    = "bar"
	TypeTrade  = "trade"
	TypeStatus = "status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and fans live events out to them.
// It implements live.Observer; broadcasts never block the driver.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string][]byte // last envelope per type
	seq     int64
	trades  *ReplayBuffer

	// OnClients, if set, is called with the client count after every
	// connect and disconnect.
	OnClients func(int)

	now func() time.Time
}

var _ live.Observer = (*Hub)(nil)

// NewHub creates a hub that keeps the last replaySize fill envelopes for
// clients that connect mid-session.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string][]byte),
		trades:  NewReplayBuffer(replaySize),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnBar broadcasts a processed bar.
func (h *Hub) OnBar(u live.BarUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Printf("[gateway] marshal bar: %v", err)
		return
	}
	h.broadcast(TypeBar, data)
}

// OnTrade broadcasts a fill.
func (h *Hub) OnTrade(ev model.TradeEvent) {
	h.broadcast(TypeTrade, ev.JSON())
}

// Seed loads fills recorded before a restart into the replay buffer, in
// order, so reconnecting dashboards still see the session's trades.
func (h *Hub) Seed(events []model.TradeEvent) {
	for i := range events {
		h.OnTrade(events[i])
	}
}

func (h *Hub) broadcast(typ string, data []byte) {
	now := h.now()

	// Fan-out stays under the write lock so every client sees envelopes
	// in seq order.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	env := buildEnvelope(typ, data, now, h.seq)
	h.latest[typ] = env
	if typ == TypeTrade {
		h.trades.Push(h.seq, env)
	}
	for client := range h.clients {
		select {
		case client.send <- env:
		default:
		}
	}
}

// buildEnvelope hand-crafts {"type":...,"data":...,"ts":...,"seq":N}.
func buildEnvelope(typ string, data []byte, ts time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(typ)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the request and registers the client. The optional
// since query parameter skips fills the client has already seen.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		since, _ = strconv.ParseInt(s, 10, 64)
	}
	h.register(conn, since)
}

func (h *Hub) register(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	count, _ := h.attach(client, since)
	log.Printf("[gateway] ws client connected (%d total)", count)
	h.notifyClients(count)

	go client.writePump()
	go client.readPump()
}

// attach queues the client's initial state and registers it in one
// critical section, so each fill reaches it either from the replay buffer
// or live, never both. It returns the client count and the number of
// envelopes queued.
func (h *Hub) attach(c *Client, since int64) (count, queued int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	queued = c.queueInitialState(since)
	h.clients[c] = true
	return len(h.clients), queued
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.notifyClients(count)
}

func (h *Hub) notifyClients(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.RemoveClient(c)
	}
}

type statusPayload struct {
	MarketOpen  bool   `json:"market_open"`
	Status      string `json:"status"`
	Clients     int    `json:"clients"`
	LastFillSeq int64  `json:"last_fill_seq"` // clients behind this reconnect with ?since=
}

// StartStatusBroadcast sends the market status to all clients every
// interval until ctx is cancelled.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			data, _ := json.Marshal(statusPayload{
				MarketOpen:  markethours.IsMarketOpen(now),
				Status:      markethours.StatusString(now),
				Clients:     h.ClientCount(),
				LastFillSeq: h.trades.LastSeq(),
			})
			h.broadcast(TypeStatus, data)
		}
	}
}
