package redis

import (
	"errors"
	"testing"
	"time"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *manualClock) {
	clk := &manualClock{t: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, reset)
	cb.now = clk.now
	return cb, clk
}

var errFail = errors.New("fail")

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	if cb.CurrentState() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.CurrentState())
	}
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); !errors.Is(err, errFail) {
			t.Fatalf("call %d: expected errFail, got %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("non-consecutive failures must not trip, state=%v", cb.CurrentState())
	}
	if cb.Failures() != 1 {
		t.Errorf("failures: got %d, want 1", cb.Failures())
	}
}

func TestCircuitBreaker_ProbeOutcome(t *testing.T) {
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"probe succeeds", nil, StateClosed},
		{"probe fails", errFail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clk := newTestBreaker(1, time.Second)
			var transitions []State
			cb.OnStateChange = func(_, to State) { transitions = append(transitions, to) }

			cb.Execute(func() error { return errFail })
			clk.advance(500 * time.Millisecond)
			if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
				t.Fatalf("expected rejection before the timeout, got %v", err)
			}

			clk.advance(time.Second)
			cb.Execute(func() error { return tt.probe })
			if cb.CurrentState() != tt.want {
				t.Errorf("state after probe: got %v, want %v", cb.CurrentState(), tt.want)
			}
			want := []State{StateOpen, StateHalfOpen, tt.want}
			if len(transitions) != len(want) {
				t.Fatalf("transitions: got %v, want %v", transitions, want)
			}
			for i := range want {
				if transitions[i] != want[i] {
					t.Errorf("transition %d: got %v, want %v", i, transitions[i], want[i])
				}
			}
		})
	}
}

func TestCircuitBreaker_SingleProbeInFlight(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)

	err := cb.Execute(func() error {
		// A second caller during the probe is rejected.
		if inner := cb.Execute(func() error { return nil }); !errors.Is(inner, ErrCircuitOpen) {
			t.Errorf("concurrent probe: expected ErrCircuitOpen, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", s, s.String(), want)
		}
	}
}
