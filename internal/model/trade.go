package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExitReason explains why a long position was closed.
type ExitReason string

const (
	ReasonNone         ExitReason = ""
	ReasonStop         ExitReason = "STOP"
	ReasonSignal       ExitReason = "SIGNAL"
	ReasonEndOfSession ExitReason = "END_OF_SESSION"
)

// TradeEvent is one immutable ledger entry.
// Reason, Return and ReturnPct are only set on SELL events.
type TradeEvent struct {
	Session   string     `json:"session"`
	Time      time.Time  `json:"time"`
	Side      Side       `json:"side"`
	Price     float64    `json:"price"` // post-slippage, 4 dp
	RSI       float64    `json:"rsi"`   // 2 dp
	Reason    ExitReason `json:"reason,omitempty"`
	Return    float64    `json:"return,omitempty"`     // raw fraction
	ReturnPct float64    `json:"return_pct,omitempty"` // 3 dp
	Shares    float64    `json:"shares"`               // shares traded
	Cash      float64    `json:"cash"`                 // cash after the fill
}

// JSON returns the JSON-encoded event.
func (t *TradeEvent) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// IsExit reports whether the event closes a position.
func (t *TradeEvent) IsExit() bool {
	return t.Side == SideSell
}

// SessionSummary is the day-level roll-up of one engine run.
type SessionSummary struct {
	Date           string   `json:"date"`
	Bars           int      `json:"bars"`
	Trades         int      `json:"trades"` // SELL count
	FinalEquity    float64  `json:"final_equity"`
	TotalReturnPct float64  `json:"total_return_pct"`
	WinRatePct     *float64 `json:"win_rate_pct"` // nil when no trade completed
	MaxDrawdownPct float64  `json:"max_drawdown_pct"`
}

// SessionStudy is the oscillator profile of a single session, used to
// annotate price/RSI charts.
type SessionStudy struct {
	Date    string  `json:"date"`
	Bars    int     `json:"bars"`
	MinRSI  float64 `json:"min_rsi"`
	MaxRSI  float64 `json:"max_rsi"`
	HitBuy  bool    `json:"hit_buy"`
	HitSell bool    `json:"hit_sell"`
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// FormatFixed renders v with exactly places decimals.
func FormatFixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
