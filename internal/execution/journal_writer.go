package execution

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

const journalWriteTimeout = 5 * time.Second

// JournalWriter records fills for one run from its own goroutine, so the
// caller never waits on SQLite.
type JournalWriter struct {
	j     *Journal
	runID string
	ch    chan model.TradeEvent

	// OnError, if set, is called for every failed write.
	OnError func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// NewJournalWriter creates a writer with room for queueSize pending fills.
// Start it with Run and stop it with Close.
func NewJournalWriter(j *Journal, runID string, queueSize int) *JournalWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &JournalWriter{
		j:     j,
		runID: runID,
		ch:    make(chan model.TradeEvent, queueSize),
		done:  make(chan struct{}),
	}
}

// Enqueue queues a fill without blocking. It reports false when the queue
// is full or the writer is closed.
func (w *JournalWriter) Enqueue(ev model.TradeEvent) (ok bool) {
	defer func() {
		if recover() != nil {
			log.Printf("[journal] fill after close dropped: %s %s", ev.Side, ev.Time.Format(time.RFC3339))
			ok = false
		}
	}()
	select {
	case w.ch <- ev:
		return true
	default:
		log.Printf("[journal] queue full, fill dropped: %s %s", ev.Side, ev.Time.Format(time.RFC3339))
		return false
	}
}

// Run writes queued fills until Close is called and the queue is drained.
func (w *JournalWriter) Run() {
	defer close(w.done)
	for ev := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		err := w.j.RecordTrade(ctx, w.runID, ev)
		cancel()
		if err != nil {
			log.Printf("[journal] record trade: %v", err)
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

// Close stops accepting fills and waits for Run to write the rest.
func (w *JournalWriter) Close() {
	w.closeOnce.Do(func() { close(w.ch) })
	<-w.done
}
