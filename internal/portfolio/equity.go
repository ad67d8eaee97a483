// Package portfolio tracks account equity, its running peak and the deepest
// drawdown seen during a run.
package portfolio

// EquityTracker follows mark-to-market equity for a single run.
// Not safe for concurrent use; it lives inside one engine.
type EquityTracker struct {
	equity      float64
	peakEquity  float64
	maxDrawdown float64 // most negative (equity-peak)/peak seen, <= 0
	marks       int
}

// NewEquityTracker creates a tracker seeded with the starting equity.
func NewEquityTracker(initialEquity float64) *EquityTracker {
	return &EquityTracker{
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// Mark records the equity at a bar and returns the current drawdown fraction.
func (t *EquityTracker) Mark(equity float64) float64 {
	t.marks++
	t.equity = equity
	if equity > t.peakEquity {
		t.peakEquity = equity
	}
	dd := t.Drawdown()
	if dd < t.maxDrawdown {
		t.maxDrawdown = dd
	}
	return dd
}

// Drawdown returns (equity - peak) / peak for the latest mark. Zero when the
// peak is not positive.
func (t *EquityTracker) Drawdown() float64 {
	if t.peakEquity <= 0 {
		return 0
	}
	return (t.equity - t.peakEquity) / t.peakEquity
}

// Equity returns the last marked equity.
func (t *EquityTracker) Equity() float64 { return t.equity }

// PeakEquity returns the running maximum equity.
func (t *EquityTracker) PeakEquity() float64 { return t.peakEquity }

// MaxDrawdown returns the most negative drawdown fraction seen (<= 0).
func (t *EquityTracker) MaxDrawdown() float64 { return t.maxDrawdown }

// MaxDrawdownPct returns the drawdown magnitude as a positive percentage.
func (t *EquityTracker) MaxDrawdownPct() float64 { return -t.maxDrawdown * 100 }

// Marks returns the number of bars marked.
func (t *EquityTracker) Marks() int { return t.marks }
