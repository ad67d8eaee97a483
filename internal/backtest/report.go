package backtest

import (
	"math"

	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// Study profiles a session's oscillator: its range and whether the entry and
// exit thresholds were ever crossed.
func Study(date string, rsi []float64, params execution.Params) model.SessionStudy {
	st := model.SessionStudy{Date: date, Bars: len(rsi)}
	if len(rsi) == 0 {
		return st
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range rsi {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		if v < params.BuyThreshold {
			st.HitBuy = true
		}
		if v > params.SellThreshold {
			st.HitSell = true
		}
	}
	st.MinRSI = model.Round(lo, 1)
	st.MaxRSI = model.Round(hi, 1)
	return st
}

// Totals aggregates a report across sessions.
type Totals struct {
	Sessions            int
	Trades              int
	CompoundedReturnPct float64  // capital resets daily; this chains the daily returns
	AvgReturnPct        float64  // mean of the daily returns
	WinRatePct          *float64 // over every exit; nil when none
	WorstDrawdownPct    float64
}

// Totals computes the cross-session aggregate for console reporting.
func (r Report) Totals() Totals {
	t := Totals{Sessions: len(r.Sessions)}
	if t.Sessions == 0 {
		return t
	}

	growth := 1.0
	sum := 0.0
	exits, wins := 0, 0
	for _, s := range r.Sessions {
		ret := s.Result.TotalReturn()
		growth *= 1 + ret
		sum += ret
		t.Trades += s.Summary.Trades
		if s.Summary.MaxDrawdownPct > t.WorstDrawdownPct {
			t.WorstDrawdownPct = s.Summary.MaxDrawdownPct
		}
		for _, ev := range s.Result.Exits() {
			exits++
			if ev.Return > 0 {
				wins++
			}
		}
	}

	t.CompoundedReturnPct = model.Round((growth-1)*100, 2)
	t.AvgReturnPct = model.Round(sum/float64(t.Sessions)*100, 2)
	if exits > 0 {
		wr := model.Round(float64(wins)/float64(exits)*100, 1)
		t.WinRatePct = &wr
	}
	return t
}
