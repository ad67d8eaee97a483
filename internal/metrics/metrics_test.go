package metrics

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/live"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func assertGauge(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func TestMetrics_ObserverFeedsGauges(t *testing.T) {
	m := NewMetrics()
	ts := time.Date(2026, time.March, 2, 14, 45, 0, 0, time.UTC)

	m.OnBar(live.BarUpdate{Bar: model.Bar{Time: ts, Close: 100}, RSI: 18, Equity: 10000, Long: true})
	m.OnBar(live.BarUpdate{Bar: model.Bar{Time: ts.Add(time.Minute), Close: 99}, RSI: 12, Equity: 9900, Long: true})

	assertGauge(t, "bars", testutil.ToFloat64(m.BarsProcessed), 2)
	assertGauge(t, "equity", testutil.ToFloat64(m.Equity), 9900)
	assertGauge(t, "drawdown", testutil.ToFloat64(m.DrawdownPct), 1)
	assertGauge(t, "rsi", testutil.ToFloat64(m.RSI), 12)
	assertGauge(t, "position", testutil.ToFloat64(m.PositionOpen), 1)
	assertGauge(t, "last bar", testutil.ToFloat64(m.LastBarTime), float64(ts.Add(time.Minute).Unix()))

	m.OnTrade(model.TradeEvent{Side: model.SideBuy})
	m.OnTrade(model.TradeEvent{Side: model.SideSell, Reason: model.ReasonStop, ReturnPct: -2.05})
	assertGauge(t, "entries", testutil.ToFloat64(m.Trades.WithLabelValues("BUY", "entry")), 1)
	assertGauge(t, "stops", testutil.ToFloat64(m.Trades.WithLabelValues("SELL", "STOP")), 1)
	assertGauge(t, "position after exit", testutil.ToFloat64(m.PositionOpen), 0)

	m.OnPoll(live.PollStale)
	m.OnPoll(live.PollStale)
	assertGauge(t, "stale polls", testutil.ToFloat64(m.Polls.WithLabelValues("stale")), 2)

	m.ObserveSession(model.SessionSummary{TotalReturnPct: -1.25})
	assertGauge(t, "sessions", testutil.ToFloat64(m.Sessions), 1)
	assertGauge(t, "session return", testutil.ToFloat64(m.SessionReturn), -1.25)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := NewMetrics()
	m.OnPoll(live.PollBar)
	srv := NewServer(":0", m, NewHealthStatus("backtest", false))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `rsitrader_polls_total{outcome="bar"} 1`) {
		t.Errorf("poll counter missing from exposition:\n%s", body)
	}
}

func TestHealth_Status(t *testing.T) {
	tests := []struct {
		name          string
		redisRequired bool
		redisUp       bool
		sqliteOK      bool
		wantCode      int
		wantStatus    string
	}{
		{"replay, sqlite ok", false, false, true, http.StatusOK, "healthy"},
		{"redis required and up", true, true, true, http.StatusOK, "healthy"},
		{"redis required and down", true, false, true, http.StatusServiceUnavailable, "degraded"},
		{"sqlite down", false, false, false, http.StatusServiceUnavailable, "degraded"},
		{"both down", true, false, false, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus("paper", tt.redisRequired)
			h.SetRedisConnected(tt.redisUp)
			h.SetSQLiteOK(tt.sqliteOK)
			h.SetLastBarTime(time.Now().Add(-90 * time.Second))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code: got %d, want %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status: got %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.BarAge == "" || resp.Mode != "paper" {
				t.Errorf("response missing fields: %+v", resp)
			}
		})
	}
}
