// Package live drives the execution engine from a polled bar source until
// the session ends or the context is cancelled.
//
// One goroutine owns the engine and the oscillator. Each poll either
// processes a new bar, or backs off: a shorter wait when the source repeats
// the last bar, a longer one when it has nothing. Whatever position is open
// when the loop stops is force-closed at the last observed bar.
package live

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// Source yields the most recent completed bar. ok=false means no data yet.
type Source interface {
	LatestBar(ctx context.Context) (bar model.Bar, ok bool, err error)
}

// Default loop timings.
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultStaleInterval = 3 * time.Second
	DefaultEmptyInterval = 5 * time.Second
)

// Driver configures a live run. The zero value of each optional field picks
// the default.
type Driver struct {
	Symbol string
	Params execution.Params
	Window int

	PollInterval  time.Duration
	StaleInterval time.Duration
	EmptyInterval time.Duration

	// SessionEnd maps the start time to the boundary at which the loop
	// stops. nil runs until ctx is cancelled.
	SessionEnd func(time.Time) time.Time
	Now        func() time.Time

	// Sleep waits d or until ctx is done. Overridable for tests.
	Sleep func(ctx context.Context, d time.Duration) error

	Observer Observer

	// Indicator, when set, is used instead of a fresh oscillator (e.g. one
	// restored from a snapshot).
	Indicator *indicator.RSI
}

// Stats counts poll outcomes over a run.
type Stats struct {
	Polls   int
	Bars    int
	Stale   int
	Empty   int
	Errors  int
	Invalid int
}

// Result is what a live run leaves behind.
type Result struct {
	execution.Result
	Summary model.SessionSummary
	Stats   Stats
}

// Run polls src until ctx is cancelled or the session ends. Cancellation is
// not an error; the position is closed and the ledger returned either way.
func (d *Driver) Run(ctx context.Context, src Source) (Result, error) {
	if err := d.Params.Validate(); err != nil {
		return Result{}, err
	}
	d.defaults()

	start := d.Now()
	var end time.Time
	if d.SessionEnd != nil {
		end = d.SessionEnd(start)
	}

	rsi := d.Indicator
	if rsi == nil {
		rsi = indicator.NewRSI(d.Window)
	}

	var (
		eng   *execution.Engine
		last  model.Bar
		stats Stats
	)

	log.Printf("[live] started symbol=%s window=%d end=%s", d.Symbol, rsi.Window(), fmtEnd(end))

	for {
		if ctx.Err() != nil {
			log.Printf("[live] cancelled")
			break
		}
		if !end.IsZero() && !d.Now().Before(end) {
			log.Printf("[live] session end reached (%s)", end.Format(time.Kitchen))
			break
		}

		stats.Polls++
		wait, out := d.poll(ctx, src, rsi, &eng, &last)
		switch out {
		case PollBar:
			stats.Bars++
		case PollStale:
			stats.Stale++
		case PollEmpty:
			stats.Empty++
		case PollError:
			stats.Errors++
		case PollInvalid:
			stats.Invalid++
		}
		if po, ok := d.Observer.(PollObserver); ok {
			po.OnPoll(out)
		}

		if err := d.Sleep(ctx, wait); err != nil {
			log.Printf("[live] cancelled")
			break
		}
	}

	if eng == nil {
		session := start.Format(model.SessionDateLayout)
		eng = execution.NewEngine(d.Params, session)
	}
	if ev := eng.Close(); ev != nil {
		d.trade(*ev)
	}

	res := Result{Result: eng.Result(), Stats: stats}
	res.Summary = res.Result.Summary()
	log.Printf("[live] done: bars=%d trades=%d equity=%.2f return=%.2f%%",
		res.Summary.Bars, res.Summary.Trades, res.Summary.FinalEquity, res.Summary.TotalReturnPct)
	return res, nil
}

// poll performs one iteration and returns how long to wait before the next.
func (d *Driver) poll(ctx context.Context, src Source, rsi *indicator.RSI, eng **execution.Engine, last *model.Bar) (time.Duration, PollOutcome) {
	bar, ok, err := src.LatestBar(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, PollEmpty
		}
		log.Printf("[live] poll error: %v", err)
		return d.EmptyInterval, PollError
	}
	if !ok {
		return d.EmptyInterval, PollEmpty
	}

	if !last.Time.IsZero() && !bar.Time.After(last.Time) {
		if bar.Time.Equal(last.Time) && bar.Close != last.Close && bar.Valid() {
			slog.Debug("revised bar", "ts", bar.Time, "close", bar.Close, "rsi_preview", rsi.Peek(bar.Close))
		}
		return d.StaleInterval, PollStale
	}
	if !bar.Valid() {
		log.Printf("[live] dropped malformed bar ts=%s close=%v", bar.Time.Format(time.RFC3339), bar.Close)
		return d.PollInterval, PollInvalid
	}

	if *eng == nil {
		*eng = execution.NewEngine(d.Params, bar.SessionDate())
	}
	e := *eng
	*last = bar

	v := rsi.Update(bar.Close)
	ev, err := e.Step(bar, v)
	if err != nil {
		// Valid() was checked above; Step can only fail the same way.
		return d.PollInterval, PollInvalid
	}

	pos := "FLAT"
	if e.Long() {
		pos = "LONG"
	}
	log.Printf("[live] %s close=%.2f rsi=%.2f equity=%.2f %s",
		bar.Time.Format("15:04"), bar.Close, v, e.Equity(), pos)

	d.Observer.OnBar(BarUpdate{
		Symbol:   d.Symbol,
		Bar:      bar,
		RSI:      v,
		Equity:   e.Equity(),
		Long:     e.Long(),
		Snapshot: rsi.Snapshot(),
	})
	if ev != nil {
		d.trade(*ev)
	}
	return d.PollInterval, PollBar
}

func (d *Driver) trade(ev model.TradeEvent) {
	if ev.IsExit() {
		log.Printf("[live] SELL %s @ %.4f rsi=%.2f reason=%s return=%.3f%%",
			ev.Time.Format("15:04"), ev.Price, ev.RSI, ev.Reason, ev.ReturnPct)
	} else {
		log.Printf("[live] BUY %s @ %.4f rsi=%.2f shares=%.4f",
			ev.Time.Format("15:04"), ev.Price, ev.RSI, ev.Shares)
	}
	d.Observer.OnTrade(ev)
}

func (d *Driver) defaults() {
	if d.PollInterval <= 0 {
		d.PollInterval = DefaultPollInterval
	}
	if d.StaleInterval <= 0 {
		d.StaleInterval = DefaultStaleInterval
	}
	if d.EmptyInterval <= 0 {
		d.EmptyInterval = DefaultEmptyInterval
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = sleep
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fmtEnd(end time.Time) string {
	if end.IsZero() {
		return "none"
	}
	return end.Format(time.RFC3339)
}
