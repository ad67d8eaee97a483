// Package redis connects the live driver to Redis: it polls the latest
// 1-minute bar written by the market-data feed and publishes trade events
// and oscillator checkpoints for dashboards and restarts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: several sessions of fills + buffer
	tradeStreamMaxLen = 5000
	defaultLatestTTL  = 30 * time.Minute
	stateTTL          = 24 * time.Hour
)

// Key layout, per symbol.
func LatestBarKey(symbol string) string { return "bar:1m:latest:" + symbol }
func BarChannel(symbol string) string { return "pub:bar:" + symbol }
func TradeStream(symbol string) string { return "trades:" + symbol }
func TradeChannel(symbol string) string { return "pub:trades:" + symbol }
func RSIStateKey(symbol string) string { return "rsi:state:" + symbol }

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer wraps a Redis client with the project's key layout.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg Config) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Ping checks the connection.
func (w *Writer) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// SetLatestBar stores bar as the symbol's latest completed bar and
// announces it on the bar channel.
func (w *Writer) SetLatestBar(ctx context.Context, symbol string, bar model.Bar) error {
	data := string(bar.JSON())
	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestBarKey(symbol), data, defaultLatestTTL)
	pipe.Publish(ctx, BarChannel(symbol), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set latest bar: %w", err)
	}
	return nil
}

// writeTrade appends a fill to the symbol's trade stream and publishes it.
func (w *Writer) writeTrade(ctx context.Context, symbol string, ev model.TradeEvent) error {
	data := string(ev.JSON())
	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: TradeStream(symbol),
		MaxLen: tradeStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Publish(ctx, TradeChannel(symbol), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write trade: %w", err)
	}
	return nil
}

// writeBarUpdate checkpoints the oscillator and publishes the processed bar.
func (w *Writer) writeBarUpdate(ctx context.Context, symbol string, update []byte, snap indicator.Snapshot) error {
	pipe := w.client.Pipeline()
	pipe.Set(ctx, RSIStateKey(symbol), snap.JSON(), stateTTL)
	pipe.Publish(ctx, BarChannel(symbol)+":processed", update)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write bar update: %w", err)
	}
	return nil
}

// LoadRSIState reads the last oscillator checkpoint. ok=false when none.
func (w *Writer) LoadRSIState(ctx context.Context, symbol string) (snap indicator.Snapshot, ok bool, err error) {
	data, err := w.client.Get(ctx, RSIStateKey(symbol)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return indicator.Snapshot{}, false, nil
		}
		return indicator.Snapshot{}, false, fmt.Errorf("redis get rsi state: %w", err)
	}
	snap, err = indicator.ParseSnapshot(data)
	if err != nil {
		return indicator.Snapshot{}, false, err
	}
	return snap, true, nil
}

// RecentTrades returns up to count of the newest fills from the symbol's
// trade stream, oldest first.
func (w *Writer) RecentTrades(ctx context.Context, symbol string, count int64) ([]model.TradeEvent, error) {
	msgs, err := w.client.XRevRangeN(ctx, TradeStream(symbol), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange trades: %w", err)
	}
	return decodeTrades(msgs), nil
}

// decodeTrades turns newest-first stream entries into fills in stream
// order, skipping entries that do not decode.
func decodeTrades(msgs []goredis.XMessage) []model.TradeEvent {
	out := make([]model.TradeEvent, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		raw, ok := m.Values["data"].(string)
		if !ok {
			log.Printf("[redis] skipping trade %s without data", m.ID)
			continue
		}
		var ev model.TradeEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Printf("[redis] skipping bad trade %s: %v", m.ID, err)
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
