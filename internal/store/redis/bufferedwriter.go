package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/live"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// eventWriter is the slice of Writer the publisher needs.
type eventWriter interface {
	writeTrade(ctx context.Context, symbol string, ev model.TradeEvent) error
	writeBarUpdate(ctx context.Context, symbol string, update []byte, snap indicator.Snapshot) error
}

// pendingWrite is one queued side-channel write: a fill or a bar update.
type pendingWrite struct {
	trade  *model.TradeEvent
	update []byte
	snap   indicator.Snapshot
}

// Publisher is a live.Observer that ships fills and bar updates to Redis
// from its own goroutine, so a slow or unavailable Redis never stalls the
// driver. Writes go through a circuit breaker; while it is open, fills are
// buffered locally (oldest dropped past maxBuf) and replayed in order once
// a write succeeds. Bar updates are not buffered: only the latest
// checkpoint matters.
type Publisher struct {
	w      eventWriter
	cb     *CircuitBreaker
	symbol string
	ch     chan pendingWrite

	mu     sync.Mutex
	buffer []model.TradeEvent
	maxBuf int

	dropped   atomic.Int64
	closeOnce sync.Once

	// Callbacks (optional, for metrics)
	OnBuffer func()          // a fill was buffered
	OnFlush  func(count int) // buffered fills were replayed
	OnDrop   func()          // an event was dropped
}

// NewPublisher creates a Publisher for symbol on w. queueSize bounds the
// in-memory queue between the driver and Redis; maxBuf bounds fills held
// while the breaker is open.
func NewPublisher(w *Writer, cb *CircuitBreaker, symbol string, queueSize, maxBuf int) *Publisher {
	return newPublisher(w, cb, symbol, queueSize, maxBuf)
}

func newPublisher(w eventWriter, cb *CircuitBreaker, symbol string, queueSize, maxBuf int) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if maxBuf <= 0 {
		maxBuf = 1000
	}
	return &Publisher{
		w:      w,
		cb:     cb,
		symbol: symbol,
		ch:     make(chan pendingWrite, queueSize),
		maxBuf: maxBuf,
	}
}

var _ live.Observer = (*Publisher)(nil)

// OnBar queues a bar update. Never blocks.
func (p *Publisher) OnBar(u live.BarUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Printf("[redis-pub] marshal bar update: %v", err)
		return
	}
	p.enqueue(pendingWrite{update: data, snap: u.Snapshot})
}

// OnTrade queues a fill. Never blocks.
func (p *Publisher) OnTrade(ev model.TradeEvent) {
	p.enqueue(pendingWrite{trade: &ev})
}

func (p *Publisher) enqueue(pw pendingWrite) {
	defer func() {
		// Send on a closed queue after Close; the run is over.
		if recover() != nil {
			p.drop()
		}
	}()
	select {
	case p.ch <- pw:
	default:
		p.drop()
	}
}

// Run drains the queue until ctx is cancelled or Close is called, then
// makes a last attempt to write what is left.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case pw, ok := <-p.ch:
			if !ok {
				p.drain()
				return
			}
			p.process(ctx, pw)
		}
	}
}

// Close stops accepting events; Run finishes the backlog and returns.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.ch) })
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case pw, ok := <-p.ch:
			if !ok {
				p.flush(ctx)
				return
			}
			p.process(ctx, pw)
		default:
			p.flush(ctx)
			return
		}
	}
}

// process writes one queued event through the breaker.
func (p *Publisher) process(ctx context.Context, pw pendingWrite) {
	if pw.trade == nil {
		err := p.cb.Execute(func() error {
			return p.w.writeBarUpdate(ctx, p.symbol, pw.update, pw.snap)
		})
		if err != nil {
			if !errors.Is(err, ErrCircuitOpen) {
				log.Printf("[redis-pub] bar update: %v", err)
			}
			p.drop()
			return
		}
		p.flush(ctx)
		return
	}

	// Keep fills in order: if anything is buffered, queue behind it.
	if p.PendingCount() > 0 {
		p.bufferTrade(*pw.trade)
		p.flush(ctx)
		return
	}
	err := p.cb.Execute(func() error {
		return p.w.writeTrade(ctx, p.symbol, *pw.trade)
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			log.Printf("[redis-pub] trade: %v", err)
		}
		p.bufferTrade(*pw.trade)
	}
}

func (p *Publisher) bufferTrade(ev model.TradeEvent) {
	p.mu.Lock()
	if len(p.buffer) >= p.maxBuf {
		// Buffer full, drop oldest
		p.buffer = p.buffer[1:]
		p.mu.Unlock()
		p.drop()
		p.mu.Lock()
	}
	p.buffer = append(p.buffer, ev)
	p.mu.Unlock()

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered fills in order, stopping at the first failure.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	flushed := 0
	for i, ev := range toFlush {
		err := p.cb.Execute(func() error { return p.w.writeTrade(ctx, p.symbol, ev) })
		if err != nil {
			p.mu.Lock()
			p.buffer = append(append([]model.TradeEvent(nil), toFlush[i:]...), p.buffer...)
			p.mu.Unlock()
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[redis-pub] flushed %d buffered fills", flushed)
		if p.OnFlush != nil {
			p.OnFlush(flushed)
		}
	}
}

func (p *Publisher) drop() {
	p.dropped.Add(1)
	if p.OnDrop != nil {
		p.OnDrop()
	}
}

// PendingCount returns the number of buffered fills waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Dropped returns how many events were discarded.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }
