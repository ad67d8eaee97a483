// Package backtest replays a multi-day 1-minute bar series session by
// session: each trading day gets its own oscillator pass and a fresh
// execution engine, and the per-day results are rolled up into summaries and
// one consolidated ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// ErrNoData is returned when no valid bar is left to backtest. Callers treat
// it as "nothing to do", not as a failure.
var ErrNoData = errors.New("backtest: no bars to process")

// Runner runs the execution engine once per session.
type Runner struct {
	Params  execution.Params
	Window  int // oscillator window; <= 0 uses indicator.DefaultWindow
	Days    int // keep only the latest N sessions; <= 0 keeps all
	Workers int // sessions processed in parallel; <= 1 runs sequentially

	// OnSession, when set, is called once per finished session from the
	// goroutine that ran it.
	OnSession func(SessionResult)
}

// SessionResult is everything produced for one session.
type SessionResult struct {
	Date    string
	Bars    []model.Bar
	RSI     []float64
	Result  execution.Result
	Summary model.SessionSummary
	Study   model.SessionStudy
}

// Report is the roll-up of a backtest. Summaries and Studies are ordered by
// session date ascending; Trades follow the same session order, then time.
type Report struct {
	Sessions  []SessionResult
	Summaries []model.SessionSummary
	Trades    []model.TradeEvent
	Studies   []model.SessionStudy
}

// Run backtests bars. Malformed bars are dropped before the oscillator sees
// them. Returns ErrNoData when nothing is left.
func (r *Runner) Run(ctx context.Context, bars []model.Bar) (Report, error) {
	if err := r.Params.Validate(); err != nil {
		return Report{}, fmt.Errorf("backtest params: %w", err)
	}

	clean := model.ValidBars(bars)
	if dropped := len(bars) - len(clean); dropped > 0 {
		log.Printf("[backtest] dropped %d malformed bars", dropped)
	}
	if len(clean) == 0 {
		return Report{}, ErrNoData
	}

	sessions := SelectRecent(GroupSessions(clean), r.Days)
	results := make([]SessionResult, len(sessions))

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(sessions) {
		workers = len(sessions)
	}

	idxCh := make(chan int)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				res, err := r.runSession(sessions[i])
				if err != nil {
					errCh <- err
					return
				}
				results[i] = res
				if r.OnSession != nil {
					r.OnSession(res)
				}
			}
		}()
	}

	var runErr error
feed:
	for i := range sessions {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break feed
		case err := <-errCh:
			runErr = err
			break feed
		case idxCh <- i:
		}
	}
	close(idxCh)
	wg.Wait()
	close(errCh)
	if runErr == nil {
		runErr = <-errCh // nil once drained
	}
	if runErr != nil {
		return Report{}, runErr
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Date < results[j].Date })
	return buildReport(results), nil
}

func (r *Runner) runSession(s Session) (SessionResult, error) {
	bars := append([]model.Bar(nil), s.Bars...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	rsi := indicator.ComputeRSI(model.Closes(bars), r.Window)
	res, err := execution.Run(r.Params, s.Date, bars, rsi)
	if err != nil {
		return SessionResult{}, fmt.Errorf("session %s: %w", s.Date, err)
	}

	sum := res.Summary()
	log.Printf("[backtest] session %s: bars=%d trades=%d return=%.2f%% maxdd=%.2f%%",
		s.Date, sum.Bars, sum.Trades, sum.TotalReturnPct, sum.MaxDrawdownPct)

	return SessionResult{
		Date:    s.Date,
		Bars:    bars,
		RSI:     rsi,
		Result:  res,
		Summary: sum,
		Study:   Study(s.Date, rsi, r.Params),
	}, nil
}

func buildReport(results []SessionResult) Report {
	rep := Report{
		Sessions:  results,
		Summaries: make([]model.SessionSummary, 0, len(results)),
		Studies:   make([]model.SessionStudy, 0, len(results)),
	}
	for _, res := range results {
		rep.Summaries = append(rep.Summaries, res.Summary)
		rep.Studies = append(rep.Studies, res.Study)
		rep.Trades = append(rep.Trades, res.Result.Trades...)
	}
	return rep
}
