package execution

import "github.com/DC0618/nvda-rsi-20-65/internal/model"

// Result is the outcome of one engine run.
type Result struct {
	Session     string
	Bars        int
	Trades      []model.TradeEvent
	StartCash   float64
	FinalEquity float64
	MaxDrawdown float64 // fraction, <= 0
	Open        bool    // a position was still open when the result was taken
}

// Exits returns the SELL events of the run.
func (r Result) Exits() []model.TradeEvent {
	var out []model.TradeEvent
	for _, t := range r.Trades {
		if t.IsExit() {
			out = append(out, t)
		}
	}
	return out
}

// TotalReturn returns FinalEquity / StartCash - 1.
func (r Result) TotalReturn() float64 {
	if r.StartCash <= 0 {
		return 0
	}
	return r.FinalEquity/r.StartCash - 1
}

// WinRate returns the fraction of exits with a positive return, and false
// when no position was closed.
func (r Result) WinRate() (float64, bool) {
	exits := r.Exits()
	if len(exits) == 0 {
		return 0, false
	}
	wins := 0
	for _, t := range exits {
		if t.Return > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(exits)), true
}

// Summary rolls the run up into a session summary, rounded for reporting.
func (r Result) Summary() model.SessionSummary {
	s := model.SessionSummary{
		Date:           r.Session,
		Bars:           r.Bars,
		Trades:         len(r.Exits()),
		FinalEquity:    model.Round(r.FinalEquity, 2),
		TotalReturnPct: model.Round(r.TotalReturn()*100, 2),
		MaxDrawdownPct: model.Round(-r.MaxDrawdown*100, 2),
	}
	if wr, ok := r.WinRate(); ok {
		pct := model.Round(wr*100, 1)
		s.WinRatePct = &pct
	}
	return s
}
