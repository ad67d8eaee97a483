package indicator

import (
	"math"
	"testing"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	prices := []float64{100, 101, 100.5, 99.8, 100.2, 101.1, 100.9}
	orig := NewRSI(14)
	for _, p := range prices {
		orig.Update(p)
	}

	snap, err := ParseSnapshot(orig.Snapshot().JSON())
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	restored := NewRSI(14)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if orig.Value() != restored.Value() {
		t.Errorf("value mismatch: original=%.6f restored=%.6f", orig.Value(), restored.Value())
	}
	if orig.Ready() != restored.Ready() {
		t.Errorf("ready mismatch: original=%v restored=%v", orig.Ready(), restored.Ready())
	}

	// Feed more data; both must produce identical results
	for _, p := range []float64{101.5, 99.0, 98.7, 102.3} {
		a, b := orig.Update(p), restored.Update(p)
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("post-restore divergence: original=%.8f restored=%.8f", a, b)
		}
	}
}

func TestSnapshot_WindowMismatch(t *testing.T) {
	r := NewRSI(14)
	r.Update(100)
	r.Update(99)

	other := NewRSI(7)
	if err := other.Restore(r.Snapshot()); err == nil {
		t.Fatal("expected window mismatch error")
	}
	if other.Count() != 0 {
		t.Errorf("failed restore must not mutate state, count=%d", other.Count())
	}
}

func TestSnapshot_Garbage(t *testing.T) {
	if _, err := ParseSnapshot([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPeek_MatchesUpdateWithoutMutation(t *testing.T) {
	r := NewRSI(3)

	if got := r.Peek(100); got != Neutral {
		t.Errorf("empty Peek: got %v, want neutral", got)
	}

	prices := []float64{100, 98, 99, 97, 101}
	for _, p := range prices {
		before := r.Snapshot()
		peeked := r.Peek(p)
		if r.Snapshot() != before {
			t.Fatalf("Peek(%v) mutated state", p)
		}
		if got := r.Update(p); math.Abs(got-peeked) > 1e-12 {
			t.Errorf("Peek(%v)=%.8f, Update=%.8f", p, peeked, got)
		}
	}
}
