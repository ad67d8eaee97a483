// Package execution runs the single-position FLAT/LONG state machine.
//
// An Engine consumes bars with their oscillator value in time order and
// records BUY/SELL fills into an append-only ledger. Entries deploy all
// available cash; exits liquidate all shares. The same Engine is driven by a
// finite slice (backtest) or by a polling loop (live driver).
package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
	"github.com/DC0618/nvda-rsi-20-65/internal/portfolio"
)

// ErrInvalidPrice is returned by Step for bars with a non-positive or
// non-finite close. The engine state is left untouched.
var ErrInvalidPrice = errors.New("execution: invalid bar price")

// Position is an open long position.
type Position struct {
	EntryPrice float64   `json:"entry_price"` // post-slippage, unrounded
	EntryTime  time.Time `json:"entry_time"`
}

// HeldMinutes returns the whole minutes elapsed between entry and t.
func (p *Position) HeldMinutes(t time.Time) int {
	return int(math.Floor(t.Sub(p.EntryTime).Minutes()))
}

// EngineState is a point-in-time copy of the engine's books.
type EngineState struct {
	Cash        float64            `json:"cash"`
	Shares      float64            `json:"shares"`
	Position    *Position          `json:"position,omitempty"`
	Equity      float64            `json:"equity"`
	PeakEquity  float64            `json:"peak_equity"`
	MaxDrawdown float64            `json:"max_drawdown"` // fraction, <= 0
	Bars        int                `json:"bars"`
	Ledger      []model.TradeEvent `json:"ledger"`
}

// Long reports whether a position is open.
func (s EngineState) Long() bool { return s.Position != nil }

// Engine owns one session's trading state. It is not safe for concurrent
// use.
type Engine struct {
	params  Params
	session string

	cash    float64
	shares  float64
	pos     *Position
	equity  *portfolio.EquityTracker
	ledger  []model.TradeEvent
	bars    int
	last    model.Bar
	lastRSI float64
}

// NewEngine creates an engine with fresh books: cash = StartCash, no shares.
// session tags every trade event (usually the YYYY-MM-DD session date).
func NewEngine(params Params, session string) *Engine {
	return &Engine{
		params:  params,
		session: session,
		cash:    params.StartCash,
		equity:  portfolio.NewEquityTracker(params.StartCash),
		ledger:  make([]model.TradeEvent, 0, 16),
	}
}

// Params returns the rules the engine runs with.
func (e *Engine) Params() Params { return e.params }

// Step processes one bar. It marks equity, then either tries an entry (FLAT)
// or evaluates stop-loss and signal exits in that order (LONG). At most one
// event is returned per bar.
func (e *Engine) Step(bar model.Bar, rsi float64) (*model.TradeEvent, error) {
	if !bar.Valid() {
		return nil, fmt.Errorf("%w: %v at %s", ErrInvalidPrice, bar.Close, bar.Time.Format(time.RFC3339))
	}
	e.bars++
	e.last = bar
	e.lastRSI = rsi
	e.equity.Mark(e.cash + e.shares*bar.Close)

	if e.pos == nil {
		return e.tryEnter(bar, rsi), nil
	}
	return e.tryExit(bar, rsi), nil
}

// Close force-liquidates an open position at the last stepped bar with
// reason END_OF_SESSION. Returns nil when flat.
func (e *Engine) Close() *model.TradeEvent {
	if e.pos == nil {
		return nil
	}
	return e.exit(e.last, e.lastRSI, model.ReasonEndOfSession)
}

// Long reports whether a position is open.
func (e *Engine) Long() bool { return e.pos != nil }

// LastBar returns the most recently stepped bar.
func (e *Engine) LastBar() (model.Bar, bool) {
	return e.last, e.bars > 0
}

// Equity returns cash plus shares marked at the last bar.
func (e *Engine) Equity() float64 {
	return e.cash + e.shares*e.last.Close
}

// State returns a copy of the engine's books.
func (e *Engine) State() EngineState {
	s := EngineState{
		Cash:        e.cash,
		Shares:      e.shares,
		Equity:      e.Equity(),
		PeakEquity:  e.equity.PeakEquity(),
		MaxDrawdown: e.equity.MaxDrawdown(),
		Bars:        e.bars,
		Ledger:      append([]model.TradeEvent(nil), e.ledger...),
	}
	if e.pos != nil {
		p := *e.pos
		s.Position = &p
	}
	return s
}

// Result snapshots the run for summarisation.
func (e *Engine) Result() Result {
	return Result{
		Session:     e.session,
		Bars:        e.bars,
		Trades:      append([]model.TradeEvent(nil), e.ledger...),
		StartCash:   e.params.StartCash,
		FinalEquity: e.Equity(),
		MaxDrawdown: e.equity.MaxDrawdown(),
		Open:        e.pos != nil,
	}
}

func (e *Engine) tryEnter(bar model.Bar, rsi float64) *model.TradeEvent {
	if !(rsi < e.params.BuyThreshold) {
		return nil
	}
	px := BuyFillPrice(bar.Close, e.params.SlippageBps)
	if px <= 0 || e.cash <= e.params.FeePerTrade {
		// degenerate entry: skipped, re-evaluated on the next bar
		return nil
	}

	shares := (e.cash - e.params.FeePerTrade) / px
	e.shares = shares
	e.cash = 0
	e.pos = &Position{EntryPrice: px, EntryTime: bar.Time}

	ev := model.TradeEvent{
		Session: e.session,
		Time:    bar.Time,
		Side:    model.SideBuy,
		Price:   model.Round(px, 4),
		RSI:     model.Round(rsi, 2),
		Shares:  shares,
		Cash:    e.cash,
	}
	e.ledger = append(e.ledger, ev)
	slog.Debug("fill", "session", e.session, "side", ev.Side, "price", ev.Price, "rsi", ev.RSI)
	return &ev
}

func (e *Engine) tryExit(bar model.Bar, rsi float64) *model.TradeEvent {
	if bar.Close <= e.pos.EntryPrice*(1-e.params.StopLossPct) {
		return e.exit(bar, rsi, model.ReasonStop)
	}
	if rsi > e.params.SellThreshold && e.pos.HeldMinutes(bar.Time) >= e.params.MinHoldMinutes {
		return e.exit(bar, rsi, model.ReasonSignal)
	}
	return nil
}

func (e *Engine) exit(bar model.Bar, rsi float64, reason model.ExitReason) *model.TradeEvent {
	px := SellFillPrice(bar.Close, e.params.SlippageBps)
	proceeds := e.shares*px - e.params.FeePerTrade
	ret := (px - e.pos.EntryPrice) / e.pos.EntryPrice

	ev := model.TradeEvent{
		Session:   e.session,
		Time:      bar.Time,
		Side:      model.SideSell,
		Price:     model.Round(px, 4),
		RSI:       model.Round(rsi, 2),
		Reason:    reason,
		Return:    ret,
		ReturnPct: model.Round(ret*100, 3),
		Shares:    e.shares,
		Cash:      proceeds,
	}

	e.cash = proceeds
	e.shares = 0
	e.pos = nil
	e.ledger = append(e.ledger, ev)
	slog.Debug("fill", "session", e.session, "side", ev.Side, "price", ev.Price, "reason", reason, "return_pct", ev.ReturnPct)
	return &ev
}

// Run drives a fresh engine over a finite bar series with its oscillator
// values, skipping malformed bars, and force-closes any open position at the
// last valid bar.
func Run(params Params, session string, bars []model.Bar, rsi []float64) (Result, error) {
	if len(bars) != len(rsi) {
		return Result{}, fmt.Errorf("execution: %d bars but %d indicator values", len(bars), len(rsi))
	}
	e := NewEngine(params, session)
	for i, b := range bars {
		if _, err := e.Step(b, rsi[i]); err != nil {
			if errors.Is(err, ErrInvalidPrice) {
				continue
			}
			return Result{}, err
		}
	}
	e.Close()
	return e.Result(), nil
}
