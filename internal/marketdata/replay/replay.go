// Package replay serves stored bars one per poll, so the live driver can be
// dry-run against history.
package replay

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// BarReader is the slice of the bar store the replayer needs.
type BarReader interface {
	ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error)
}

// Source replays bars in time order. Each LatestBar call advances by one
// bar; once exhausted it keeps returning the final bar, which the driver
// treats as stale, and fires OnExhausted once.
type Source struct {
	reader   BarReader
	symbol   string
	from, to time.Time

	// OnExhausted is called the first time a poll finds no new bar.
	OnExhausted func()

	mu        sync.Mutex
	loaded    bool
	bars      []model.Bar
	next      int
	exhausted bool
}

// New creates a Source that loads [from, to] for symbol on first use.
func New(reader BarReader, symbol string, from, to time.Time) *Source {
	return &Source{reader: reader, symbol: symbol, from: from, to: to}
}

// FromBars creates a Source over an in-memory series.
func FromBars(bars []model.Bar) *Source {
	s := &Source{loaded: true, bars: append([]model.Bar(nil), bars...)}
	sortBars(s.bars)
	return s
}

// LatestBar implements live.Source.
func (s *Source) LatestBar(ctx context.Context) (model.Bar, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		bars, err := s.reader.ReadBars(ctx, s.symbol, s.from, s.to)
		if err != nil {
			return model.Bar{}, false, fmt.Errorf("replay load: %w", err)
		}
		sortBars(bars)
		s.bars = bars
		s.loaded = true
		log.Printf("[replay] loaded %d bars for %s", len(bars), s.symbol)
	}

	if len(s.bars) == 0 {
		s.markExhausted()
		return model.Bar{}, false, nil
	}
	if s.next >= len(s.bars) {
		s.markExhausted()
		return s.bars[len(s.bars)-1], true, nil
	}

	b := s.bars[s.next]
	s.next++
	return b, true, nil
}

// Remaining returns how many bars have not been served yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars) - s.next
}

func (s *Source) markExhausted() {
	if s.exhausted {
		return
	}
	s.exhausted = true
	log.Printf("[replay] completed: %d bars replayed", s.next)
	if s.OnExhausted != nil {
		s.OnExhausted()
	}
}

func sortBars(bars []model.Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
}
