// Package metrics exposes the trader's Prometheus metrics and the /healthz
// and /metrics HTTP endpoints.
package metrics

import (
	"sync"

	"github.com/DC0618/nvda-rsi-20-65/internal/live"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "rsitrader"

// Metrics holds all Prometheus metrics for a run. It doubles as a live
// observer so the driver's events feed the gauges directly.
type Metrics struct {
	Registry *prometheus.Registry

	BarsProcessed prometheus.Counter
	Polls         *prometheus.CounterVec // labels: outcome
	Trades        *prometheus.CounterVec // labels: side, reason
	TradeReturn   prometheus.Histogram   // percent, exits only
	Sessions      prometheus.Counter

	Equity        prometheus.Gauge
	DrawdownPct   prometheus.Gauge
	RSI           prometheus.Gauge
	PositionOpen  prometheus.Gauge
	LastBarTime   prometheus.Gauge
	MarketState   prometheus.Gauge // 0=closed, 1=open
	SessionReturn prometheus.Gauge // last completed session, percent

	// Side channels
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBufferedWrites      prometheus.Counter
	RedisDroppedEvents       prometheus.Counter
	WSClients                prometheus.Gauge
	NotificationsFailed      prometheus.Counter

	mu   sync.Mutex
	peak float64
}

// NewMetrics creates the metrics on a fresh registry (with Go and process
// collectors) so several instances can coexist in tests.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_processed_total",
			Help:      "Bars stepped through the execution engine",
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Live source polls by outcome (bar, stale, empty, error, invalid)",
		}, []string{"outcome"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Fills by side and exit reason",
		}, []string{"side", "reason"}),
		TradeReturn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_return_pct",
			Help:      "Round-trip return of closed positions, in percent",
			Buckets:   []float64{-3, -2, -1, -0.5, -0.25, 0, 0.25, 0.5, 1, 2, 3},
		}),
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions completed",
		}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity",
			Help:      "Cash plus position marked at the last bar",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drawdown_pct",
			Help:      "Current drawdown from peak equity, in percent",
		}),
		RSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rsi",
			Help:      "Latest oscillator value",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_open",
			Help:      "1 while long, 0 while flat",
		}),
		LastBarTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_bar_timestamp_seconds",
			Help:      "Unix time of the last processed bar",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_state",
			Help:      "Market session state (0=closed, 1=open)",
		}),
		SessionReturn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_return_pct",
			Help:      "Total return of the last completed session, in percent",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_buffered_writes_total",
			Help:      "Fills buffered locally while the Redis circuit breaker was open",
		}),
		RedisDroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_dropped_events_total",
			Help:      "Events the Redis publisher discarded (queue full or breaker open)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected dashboard WebSocket clients",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Alert deliveries that failed",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BarsProcessed,
		m.Polls,
		m.Trades,
		m.TradeReturn,
		m.Sessions,
		m.Equity,
		m.DrawdownPct,
		m.RSI,
		m.PositionOpen,
		m.LastBarTime,
		m.MarketState,
		m.SessionReturn,
		m.RedisCircuitBreakerState,
		m.RedisBufferedWrites,
		m.RedisDroppedEvents,
		m.WSClients,
		m.NotificationsFailed,
	)

	return m
}

var (
	_ live.Observer     = (*Metrics)(nil)
	_ live.PollObserver = (*Metrics)(nil)
)

// OnBar updates the per-bar gauges.
func (m *Metrics) OnBar(u live.BarUpdate) {
	m.BarsProcessed.Inc()
	m.Equity.Set(u.Equity)
	m.RSI.Set(u.RSI)
	m.LastBarTime.Set(float64(u.Bar.Time.Unix()))
	if u.Long {
		m.PositionOpen.Set(1)
	} else {
		m.PositionOpen.Set(0)
	}

	m.mu.Lock()
	if u.Equity > m.peak {
		m.peak = u.Equity
	}
	dd := 0.0
	if m.peak > 0 {
		dd = (m.peak - u.Equity) / m.peak * 100
	}
	m.mu.Unlock()
	m.DrawdownPct.Set(dd)
}

// OnTrade counts the fill and records the exit return.
func (m *Metrics) OnTrade(ev model.TradeEvent) {
	reason := string(ev.Reason)
	if reason == "" {
		reason = "entry"
	}
	m.Trades.WithLabelValues(string(ev.Side), reason).Inc()
	if ev.IsExit() {
		m.TradeReturn.Observe(ev.ReturnPct)
		m.PositionOpen.Set(0)
	} else {
		m.PositionOpen.Set(1)
	}
}

// OnPoll counts the loop outcome.
func (m *Metrics) OnPoll(out live.PollOutcome) {
	m.Polls.WithLabelValues(out.String()).Inc()
}

// ObserveSession records a completed session summary.
func (m *Metrics) ObserveSession(s model.SessionSummary) {
	m.Sessions.Inc()
	m.SessionReturn.Set(s.TotalReturnPct)
}
