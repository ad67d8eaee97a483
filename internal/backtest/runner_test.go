package backtest

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

var est = time.FixedZone("EST", -5*3600)

func day(date string, prices ...float64) []model.Bar {
	d, err := time.ParseInLocation("2006-01-02", date, est)
	if err != nil {
		panic(err)
	}
	open := d.Add(9*time.Hour + 30*time.Minute)
	bars := make([]model.Bar, len(prices))
	for i, p := range prices {
		bars[i] = model.Bar{Time: open.Add(time.Duration(i) * time.Minute), Close: p}
	}
	return bars
}

func concat(groups ...[]model.Bar) []model.Bar {
	var out []model.Bar
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func declining(date string) []model.Bar { return day(date, 100, 99, 98, 97, 96, 95) }
func flat(date string) []model.Bar      { return day(date, 100, 100, 100, 100, 100) }

func TestGroupSessions_NonContiguousDatesMerge(t *testing.T) {
	a := day("2026-03-02", 1, 2, 3)
	b := day("2026-03-03", 4, 5)
	bars := concat(a[:2], b, a[2:])

	got := GroupSessions(bars)
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].Date != "2026-03-02" || got[1].Date != "2026-03-03" {
		t.Errorf("unexpected order: %s, %s", got[0].Date, got[1].Date)
	}
	if len(got[0].Bars) != 3 || len(got[1].Bars) != 2 {
		t.Errorf("unexpected sizes: %d, %d", len(got[0].Bars), len(got[1].Bars))
	}
}

func TestSelectRecent(t *testing.T) {
	sessions := GroupSessions(concat(flat("2026-03-02"), flat("2026-03-03"), flat("2026-03-04")))

	tests := []struct {
		n    int
		want []string
	}{
		{0, []string{"2026-03-02", "2026-03-03", "2026-03-04"}},
		{2, []string{"2026-03-03", "2026-03-04"}},
		{5, []string{"2026-03-02", "2026-03-03", "2026-03-04"}},
	}
	for _, tt := range tests {
		var got []string
		for _, s := range SelectRecent(sessions, tt.n) {
			got = append(got, s.Date)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SelectRecent(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRunner_PerSessionIsolationAndOrdering(t *testing.T) {
	// Later date first: output must still be date-ascending.
	bars := concat(declining("2026-03-03"), flat("2026-03-02"))
	r := &Runner{Params: execution.DefaultParams(), Window: 14}

	rep, err := r.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(rep.Summaries))
	}

	flatSum, downSum := rep.Summaries[0], rep.Summaries[1]
	if flatSum.Date != "2026-03-02" || downSum.Date != "2026-03-03" {
		t.Fatalf("summaries not sorted by date: %s, %s", flatSum.Date, downSum.Date)
	}

	if flatSum.Trades != 0 || flatSum.WinRatePct != nil || flatSum.FinalEquity != 10000 || flatSum.MaxDrawdownPct != 0 {
		t.Errorf("flat session summary unexpected: %+v", flatSum)
	}

	// 100 -> 99 pushes RSI to 0: BUY @ 99.0198, STOP @ 97, BUY @ 96.0192, forced close @ 95.
	if downSum.Trades != 2 {
		t.Errorf("expected 2 exits on the declining session, got %d", downSum.Trades)
	}
	if downSum.WinRatePct == nil || *downSum.WinRatePct != 0 {
		t.Errorf("expected a defined 0%% win rate, got %v", downSum.WinRatePct)
	}
	if downSum.TotalReturnPct >= 0 {
		t.Errorf("expected a loss, got %v%%", downSum.TotalReturnPct)
	}

	if len(rep.Trades) != 4 {
		t.Fatalf("expected 4 ledger events, got %d", len(rep.Trades))
	}
	wantReasons := []model.ExitReason{model.ReasonNone, model.ReasonStop, model.ReasonNone, model.ReasonEndOfSession}
	for i, ev := range rep.Trades {
		if ev.Session != "2026-03-03" {
			t.Errorf("trade %d tagged %q", i, ev.Session)
		}
		if ev.Reason != wantReasons[i] {
			t.Errorf("trade %d reason %q, want %q", i, ev.Reason, wantReasons[i])
		}
	}

	// Capital resets per session: the first entry deploys the full start cash.
	first := rep.Trades[0]
	deployed := first.Shares * execution.BuyFillPrice(99, 2)
	if math.Abs(deployed-10000) > 1e-6 {
		t.Errorf("expected first entry to deploy 10000, deployed %.6f", deployed)
	}
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	bars := concat(
		declining("2026-03-02"),
		flat("2026-03-03"),
		day("2026-03-04", 100, 98, 97.5, 99, 101, 103, 104, 105, 106, 104, 103),
		declining("2026-03-05"),
	)
	seq := &Runner{Params: execution.DefaultParams(), Window: 14}
	par := &Runner{Params: execution.DefaultParams(), Window: 14, Workers: 3}

	a, err := seq.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	b, err := par.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !reflect.DeepEqual(a.Summaries, b.Summaries) {
		t.Errorf("summaries differ:\nseq=%+v\npar=%+v", a.Summaries, b.Summaries)
	}
	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Errorf("ledgers differ")
	}
}

func TestRunner_DaysLimit(t *testing.T) {
	bars := concat(flat("2026-03-02"), flat("2026-03-03"), declining("2026-03-04"))
	r := &Runner{Params: execution.DefaultParams(), Days: 1}

	rep, err := r.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Summaries) != 1 || rep.Summaries[0].Date != "2026-03-04" {
		t.Fatalf("expected only the latest session, got %+v", rep.Summaries)
	}
}

func TestRunner_NoData(t *testing.T) {
	r := &Runner{Params: execution.DefaultParams()}

	if _, err := r.Run(context.Background(), nil); !errors.Is(err, ErrNoData) {
		t.Errorf("empty input: expected ErrNoData, got %v", err)
	}
	bad := day("2026-03-02", 0, -1, math.NaN())
	if _, err := r.Run(context.Background(), bad); !errors.Is(err, ErrNoData) {
		t.Errorf("all-malformed input: expected ErrNoData, got %v", err)
	}
}

func TestRunner_MalformedBarsFiltered(t *testing.T) {
	bars := day("2026-03-02", 100, 0, 100, math.Inf(1), 100)
	r := &Runner{Params: execution.DefaultParams()}

	rep, err := r.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rep.Summaries[0].Bars; got != 3 {
		t.Errorf("expected 3 bars after filtering, got %d", got)
	}
	for _, v := range rep.Sessions[0].RSI {
		if v != 50 {
			t.Errorf("malformed bars leaked into the oscillator: %v", rep.Sessions[0].RSI)
			break
		}
	}
}

func TestRunner_InvalidParams(t *testing.T) {
	p := execution.DefaultParams()
	p.StartCash = -1
	r := &Runner{Params: p}
	if _, err := r.Run(context.Background(), flat("2026-03-02")); err == nil {
		t.Fatal("expected params error")
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Params: execution.DefaultParams()}

	_, err := r.Run(ctx, concat(flat("2026-03-02"), flat("2026-03-03")))
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("expected nil or context.Canceled, got %v", err)
	}
}

func TestRunner_OnSessionHook(t *testing.T) {
	seen := make(map[string]bool)
	r := &Runner{
		Params:    execution.DefaultParams(),
		OnSession: func(res SessionResult) { seen[res.Date] = true },
	}
	if _, err := r.Run(context.Background(), concat(flat("2026-03-02"), flat("2026-03-03"))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seen["2026-03-02"] || !seen["2026-03-03"] {
		t.Errorf("hook not called for every session: %v", seen)
	}
}
