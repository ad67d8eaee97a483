package execution

import (
	"fmt"
	"math"
)

// Params are the tunable rules of the mean-reversion engine.
type Params struct {
	BuyThreshold   float64 `json:"buy_threshold"`    // enter when RSI < this
	SellThreshold  float64 `json:"sell_threshold"`   // exit when RSI > this (after MinHoldMinutes)
	StopLossPct    float64 `json:"stop_loss_pct"`    // fraction, e.g. 0.02 = 2%
	MinHoldMinutes int     `json:"min_hold_minutes"` // signal exits wait this long; stops do not
	SlippageBps    float64 `json:"slippage_bps"`     // against the trader on both sides
	FeePerTrade    float64 `json:"fee_per_trade"`    // flat, per fill
	StartCash      float64 `json:"start_cash"`
}

// DefaultParams returns the RSI 20/65 rule: 2% stop, 5-minute hold,
// 2 bps slippage, no fees, 10,000 starting cash.
func DefaultParams() Params {
	return Params{
		BuyThreshold:   20,
		SellThreshold:  65,
		StopLossPct:    0.02,
		MinHoldMinutes: 5,
		SlippageBps:    2,
		FeePerTrade:    0,
		StartCash:      10000,
	}
}

// Validate rejects parameter sets that would let the engine divide by zero
// or hold a negative share count.
func (p Params) Validate() error {
	if !inRange(p.BuyThreshold, 0, 100) {
		return fmt.Errorf("buy threshold %v outside [0,100]", p.BuyThreshold)
	}
	if !inRange(p.SellThreshold, 0, 100) {
		return fmt.Errorf("sell threshold %v outside [0,100]", p.SellThreshold)
	}
	if !inRange(p.StopLossPct, 0, 1) || p.StopLossPct == 1 {
		return fmt.Errorf("stop loss %v outside [0,1)", p.StopLossPct)
	}
	if p.MinHoldMinutes < 0 {
		return fmt.Errorf("min hold minutes %d is negative", p.MinHoldMinutes)
	}
	if !inRange(p.SlippageBps, 0, 10000) || p.SlippageBps == 10000 {
		return fmt.Errorf("slippage %v bps outside [0,10000)", p.SlippageBps)
	}
	if !inRange(p.FeePerTrade, 0, math.MaxFloat64) {
		return fmt.Errorf("fee per trade %v is negative", p.FeePerTrade)
	}
	if !(p.StartCash > 0) || math.IsInf(p.StartCash, 0) {
		return fmt.Errorf("start cash %v must be positive", p.StartCash)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
