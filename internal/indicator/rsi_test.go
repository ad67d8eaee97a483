package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertBounded(t *testing.T, values []float64) {
	t.Helper()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
			t.Fatalf("value %d out of [0,100]: %v", i, v)
		}
	}
}

func TestRSI_HandCalculated_Window2(t *testing.T) {
	// alpha = 1/2
	// 10 -> 11: seed gain=1 loss=0       -> loss zero -> 50
	// 11 -> 10: gain=0.5 loss=0.5        -> rs=1 -> 50
	// 10 -> 12: gain=1.25 loss=0.25      -> rs=5 -> 83.3333
	// 12 -> 11: gain=0.625 loss=0.625    -> rs=1 -> 50
	got := ComputeRSI([]float64{10, 11, 10, 12, 11}, 2)
	want := []float64{50, 50, 50, 83.333333, 50}
	for i := range want {
		assertClose(t, "RSI(2)", got[i], want[i], 0.0001)
	}
}

func TestRSI_FirstValueIsNeutral(t *testing.T) {
	r := NewRSI(14)
	if r.Ready() {
		t.Fatal("expected not ready before any close")
	}
	if v := r.Update(100); v != Neutral {
		t.Errorf("first value: got %v, want %v", v, Neutral)
	}
	if r.Ready() {
		t.Error("expected not ready after a single close")
	}
	r.Update(99)
	if !r.Ready() {
		t.Error("expected ready after the first price change")
	}
}

func TestRSI_FirstDeltaSeedsAverages(t *testing.T) {
	// A first move down seeds avgLoss with the full move: rs = 0 -> 0.
	r := NewRSI(14)
	r.Update(100)
	assertClose(t, "after drop", r.Update(99), 0, 1e-9)
	// Next: gain = 1/14, loss = 13/14 -> rs = 1/13 -> 100 - 100/(14/13) = 7.142857
	assertClose(t, "after rebound", r.Update(100), 7.142857, 0.0001)
}

func TestRSI_ZeroLossIsNeutral(t *testing.T) {
	// A strictly rising series never records a loss; the ratio stays
	// undefined and the value stays at the neutral midpoint.
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	for i, v := range ComputeRSI(closes, 14) {
		if v != Neutral {
			t.Fatalf("bar %d: got %v, want %v", i, v, Neutral)
		}
	}
}

func TestRSI_ConstantSlopeUp_ConvergesTo100(t *testing.T) {
	// One opening down-tick, then a constant positive slope.
	closes := []float64{100, 99}
	for i := 1; i <= 300; i++ {
		closes = append(closes, 99+float64(i)*0.5)
	}
	got := ComputeRSI(closes, 14)
	assertBounded(t, got)
	if last := got[len(got)-1]; last < 99.99 {
		t.Errorf("expected convergence to 100, last=%.6f", last)
	}
	for i := 3; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("bar %d: expected non-decreasing RSI on a rising series (%.6f < %.6f)", i, got[i], got[i-1])
		}
	}
}

func TestRSI_ConstantSlopeDown_ConvergesTo0(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 500 - float64(i)
	}
	got := ComputeRSI(closes, 14)
	assertBounded(t, got)
	if got[0] != Neutral {
		t.Errorf("first value: got %v, want %v", got[0], Neutral)
	}
	if last := got[len(got)-1]; last > 0.01 {
		t.Errorf("expected convergence to 0, last=%.6f", last)
	}
}

func TestRSI_FlatSeriesIsNeutral(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100}
	for i, v := range ComputeRSI(closes, 14) {
		if v != Neutral {
			t.Errorf("bar %d: got %v, want %v", i, v, Neutral)
		}
	}
}

func TestRSI_StreamingMatchesBatch(t *testing.T) {
	closes := []float64{100, 101.5, 100.2, 99.8, 102.1, 103.0, 101.7, 100.9, 104.2, 103.3}
	batch := ComputeRSI(closes, 5)

	r := NewRSI(5)
	for i, c := range closes {
		assertClose(t, "streaming", r.Update(c), batch[i], 1e-12)
	}
	assertClose(t, "Value()", r.Value(), batch[len(batch)-1], 1e-12)
	if r.Count() != len(closes) {
		t.Errorf("Count()=%d, want %d", r.Count(), len(closes))
	}
}

func TestRSI_ResetStartsOver(t *testing.T) {
	r := NewRSI(3)
	for _, c := range []float64{10, 9, 8, 7} {
		r.Update(c)
	}
	r.Reset()
	if r.Value() != Neutral || r.Count() != 0 || r.Ready() {
		t.Fatalf("reset did not clear state: value=%v count=%d", r.Value(), r.Count())
	}
	assertClose(t, "after reset", r.Update(10), Neutral, 0)
}

func TestNewRSI_DefaultWindow(t *testing.T) {
	for _, w := range []int{0, -3} {
		if got := NewRSI(w).Window(); got != DefaultWindow {
			t.Errorf("NewRSI(%d).Window() = %d, want %d", w, got, DefaultWindow)
		}
	}
}
