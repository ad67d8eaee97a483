package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

var t0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

type fakeReader struct {
	bars  []model.Bar
	err   error
	calls int
}

func (f *fakeReader) ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	f.calls++
	return f.bars, f.err
}

func TestSource_ServesInOrderThenRepeatsLast(t *testing.T) {
	r := &fakeReader{bars: []model.Bar{
		{Time: t0.Add(2 * time.Minute), Close: 102},
		{Time: t0, Close: 100},
		{Time: t0.Add(time.Minute), Close: 101},
	}}
	exhausted := 0
	src := New(r, "NVDA", t0, t0.Add(time.Hour))
	src.OnExhausted = func() { exhausted++ }

	ctx := context.Background()
	for i, want := range []float64{100, 101, 102} {
		b, ok, err := src.LatestBar(ctx)
		if err != nil || !ok {
			t.Fatalf("poll %d: ok=%v err=%v", i, ok, err)
		}
		if b.Close != want {
			t.Errorf("poll %d: close %v, want %v", i, b.Close, want)
		}
	}
	if src.Remaining() != 0 {
		t.Errorf("remaining: %d", src.Remaining())
	}

	for i := 0; i < 2; i++ {
		b, ok, err := src.LatestBar(ctx)
		if err != nil || !ok || b.Close != 102 {
			t.Errorf("after exhaustion: got %+v ok=%v err=%v", b, ok, err)
		}
	}
	if exhausted != 1 {
		t.Errorf("OnExhausted called %d times, want 1", exhausted)
	}
	if r.calls != 1 {
		t.Errorf("reader called %d times, want 1", r.calls)
	}
}

func TestSource_Empty(t *testing.T) {
	src := FromBars(nil)
	called := false
	src.OnExhausted = func() { called = true }

	if _, ok, err := src.LatestBar(context.Background()); ok || err != nil {
		t.Errorf("expected no data, got ok=%v err=%v", ok, err)
	}
	if !called {
		t.Error("OnExhausted not called for an empty series")
	}
}

func TestSource_LoadError(t *testing.T) {
	src := New(&fakeReader{err: errors.New("disk gone")}, "NVDA", t0, t0)
	if _, _, err := src.LatestBar(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}
