// Package indicator computes the momentum oscillator that drives the
// execution engine.
//
// The RSI here is the exponentially weighted variant (alpha = 1/window, no
// warm-up look-back): the first price change seeds both averages and every
// later change is blended in. Whenever momentum is undefined (first bar, or
// an average loss of exactly zero) the value is the neutral midpoint 50.
package indicator

import "math"

const (
	// DefaultWindow is the smoothing window used when none is configured.
	DefaultWindow = 14

	// Neutral is reported whenever momentum is undefined.
	Neutral = 50.0
)

// RSI is a streaming oscillator. Update is O(1) per bar.
// Not safe for concurrent use; each engine owns its own instance.
type RSI struct {
	window    int
	alpha     float64
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates an RSI with the given window (typically 14).
func NewRSI(window int) *RSI {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RSI{
		window:  window,
		alpha:   1.0 / float64(window),
		current: Neutral,
	}
}

func (r *RSI) Name() string { return "RSI" }

// Window returns the smoothing window.
func (r *RSI) Window() int { return r.window }

// Update feeds the next close and returns the new oscillator value.
func (r *RSI) Update(price float64) float64 {
	r.count++

	if r.count == 1 {
		// First bar, no delta yet
		r.prevClose = price
		r.current = Neutral
		return r.current
	}

	gain, loss := split(price - r.prevClose)
	r.prevClose = price

	if r.count == 2 {
		r.avgGain = gain
		r.avgLoss = loss
	} else {
		r.avgGain = (1-r.alpha)*r.avgGain + r.alpha*gain
		r.avgLoss = (1-r.alpha)*r.avgLoss + r.alpha*loss
	}

	r.current = value(r.avgGain, r.avgLoss)
	return r.current
}

// Value returns the latest oscillator value (50 before any delta exists).
func (r *RSI) Value() float64 { return r.current }

// Ready returns true once at least one price change has been observed.
func (r *RSI) Ready() bool { return r.count > 1 }

// Count returns the number of closes consumed.
func (r *RSI) Count() int { return r.count }

// Reset clears the state for reuse on a new session.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.current = Neutral
}

// ComputeRSI runs the streaming RSI over a finite close series and returns
// one value per input, in order.
func ComputeRSI(closes []float64, window int) []float64 {
	r := NewRSI(window)
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = r.Update(c)
	}
	return out
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// value maps the averages to [0,100]. A zero average loss leaves the ratio
// undefined, which is reported as neutral rather than 100.
func value(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return Neutral
	}
	rs := avgGain / avgLoss
	v := 100.0 - (100.0 / (1.0 + rs))
	if math.IsNaN(v) {
		return Neutral
	}
	return v
}
