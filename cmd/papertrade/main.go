// cmd/papertrade runs the RSI 20/65 strategy live against 1-minute bars,
// either the latest bar published in Redis or a replay of one stored session.
// Fills go to the journal, Redis, the dashboard WebSocket and alert sinks;
// the position is force-closed when the session ends or on SIGINT.
//
// Usage:
//
//	go run ./cmd/papertrade --source=redis
//	POLL_INTERVAL=20ms go run ./cmd/papertrade --source=replay --date=2026-03-02
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/config"
	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/export"
	"github.com/DC0618/nvda-rsi-20-65/internal/gateway"
	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/live"
	"github.com/DC0618/nvda-rsi-20-65/internal/logger"
	"github.com/DC0618/nvda-rsi-20-65/internal/markethours"
	"github.com/DC0618/nvda-rsi-20-65/internal/marketdata/replay"
	"github.com/DC0618/nvda-rsi-20-65/internal/metrics"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
	"github.com/DC0618/nvda-rsi-20-65/internal/notification"
	redisstore "github.com/DC0618/nvda-rsi-20-65/internal/store/redis"
	sqlitestore "github.com/DC0618/nvda-rsi-20-65/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[papertrade] %v", err)
	}

	flag.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "Symbol to trade")
	flag.StringVar(&cfg.LiveSource, "source", cfg.LiveSource, "Bar source: redis or replay")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite bar database (replay source)")
	flag.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "SQLite trade journal (empty disables)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Metrics, health and dashboard WS address (empty disables)")
	flag.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory for CSV output")
	flag.StringVar(&cfg.SessionEnd, "session-end", cfg.SessionEnd, "New York wall-clock stop time, HH:MM")
	date := flag.String("date", "", "Session to replay, YYYY-MM-DD (replay source)")
	publish := flag.Bool("publish", false, "Publish fills to Redis when replaying")
	resume := flag.Bool("resume", false, "Restore the oscillator from the Redis checkpoint")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[papertrade] %v", err)
	}
	logger.Init("papertrade", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	redisRequired := cfg.LiveSource == config.SourceRedis
	health := metrics.NewHealthStatus("paper-"+cfg.LiveSource, redisRequired)
	health.SetSQLiteOK(true)
	observers := live.MultiObserver{m, healthObserver{health}}

	driver := &live.Driver{
		Symbol:        cfg.Symbol,
		Params:        cfg.Params(),
		Window:        cfg.RSIWindow,
		PollInterval:  cfg.PollInterval,
		StaleInterval: cfg.StaleInterval,
		EmptyInterval: cfg.EmptyInterval,
	}

	// Redis
	var rw *redisstore.Writer
	if redisRequired || *publish || *resume {
		rw, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("[papertrade] redis: %v", err)
		}
		defer rw.Close()
		health.SetRedisConnected(true)
	}

	// Bar source
	var src live.Source
	switch cfg.LiveSource {
	case config.SourceRedis:
		src = redisstore.NewBarPoller(rw, cfg.Symbol, markethours.NewYork)
		end, _ := cfg.SessionEndFunc()
		driver.SessionEnd = end
	case config.SourceReplay:
		store, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[papertrade] sqlite open failed: %v", err)
		}
		defer store.Close()
		from, to, err := sessionBounds(*date)
		if err != nil {
			log.Fatalf("[papertrade] %v", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		rs := replay.New(store, cfg.Symbol, from, to)
		rs.OnExhausted = func() {
			log.Printf("[papertrade] replay of %s exhausted", *date)
			cancel()
		}
		src = rs
		health.StartLivenessChecker(ctx, nil, store.DB(), 15*time.Second)
	}

	if *resume {
		snap, ok, err := rw.LoadRSIState(ctx, cfg.Symbol)
		switch {
		case err != nil:
			log.Printf("[papertrade] rsi checkpoint: %v", err)
		case ok:
			rsi := indicator.NewRSI(cfg.RSIWindow)
			if err := rsi.Restore(snap); err != nil {
				log.Printf("[papertrade] rsi checkpoint rejected: %v", err)
			} else {
				driver.Indicator = rsi
				log.Printf("[papertrade] resumed oscillator at %d bars, RSI %.2f", snap.Count, snap.Current)
			}
		}
	}

	// Redis publisher
	var pub *redisstore.Publisher
	pubDone := make(chan struct{})
	if rw != nil {
		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			health.SetRedisConnected(to != redisstore.StateOpen)
		}
		pub = redisstore.NewPublisher(rw, cb, cfg.Symbol, 1024, 5000)
		pub.OnBuffer = m.RedisBufferedWrites.Inc
		pub.OnDrop = m.RedisDroppedEvents.Inc
		pub.OnFlush = func(n int) { log.Printf("[papertrade] replayed %d buffered fills to redis", n) }
		go func() {
			pub.Run(context.Background())
			close(pubDone)
		}()
		observers = append(observers, pub)
		health.StartLivenessChecker(ctx, rw.Client(), nil, 15*time.Second)
	} else {
		close(pubDone)
	}

	// Journal
	var journal *execution.Journal
	var runID string
	var journalW *execution.JournalWriter
	if cfg.JournalPath != "" {
		journal, err = execution.NewJournal(cfg.JournalPath)
		if err != nil {
			log.Fatalf("[papertrade] journal: %v", err)
		}
		defer journal.Close()
		runID, err = journal.StartRun(ctx, "paper-"+cfg.LiveSource, cfg.Symbol, cfg.Params())
		if err != nil {
			log.Fatalf("[papertrade] journal: %v", err)
		}
		ctx = logger.WithRunID(ctx, runID)
		journalW = execution.NewJournalWriter(journal, runID, 256)
		go journalW.Run()
		observers = append(observers, journalObserver{journalW})
	}

	// Alerts
	alerter := notification.NewAlerter(buildNotifier(cfg), cfg.Symbol, 64)
	alerter.OnFailure = func(error) { m.NotificationsFailed.Inc() }
	go alerter.Run()
	observers = append(observers, alerter)

	// Metrics, health and dashboard
	var srv *metrics.Server
	if cfg.MetricsAddr != "" {
		hub := gateway.NewHub(500)
		hub.OnClients = func(n int) { m.WSClients.Set(float64(n)) }
		defer hub.Close()
		go hub.StartStatusBroadcast(ctx, 2*time.Second)
		if rw != nil && *resume {
			seedHub(ctx, hub, rw, cfg.Symbol)
		}
		observers = append(observers, hub)

		srv = metrics.NewServer(cfg.MetricsAddr, m, health)
		srv.Handle("/ws", hub)
		srv.Start()
	}
	go trackMarketState(ctx, m)

	driver.Observer = observers
	slog.Info("paper trading started", append(logger.LogWithRun(ctx),
		"symbol", cfg.Symbol, "source", cfg.LiveSource, "market", markethours.StatusString(time.Now()))...)

	res, err := driver.Run(ctx, src)
	if err != nil {
		log.Fatalf("[papertrade] %v", err)
	}

	// The forced close was emitted by Run; let the sinks finish with it.
	alerter.Close()
	if journalW != nil {
		journalW.Close()
	}
	if pub != nil {
		pub.Close()
	}
	<-pubDone

	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.ObserveSession(res.Summary)
	if journal != nil {
		if err := journal.RecordSummaries(finishCtx, runID, []model.SessionSummary{res.Summary}); err != nil {
			log.Printf("[papertrade] journal summary: %v", err)
		}
		if err := journal.FinishRun(finishCtx, runID); err != nil {
			log.Printf("[papertrade] journal finish: %v", err)
		}
	}
	if len(res.Trades) > 0 {
		path := filepath.Join(cfg.OutDir, fmt.Sprintf("%s_paper_trades_%s.csv", cfg.Symbol, res.Summary.Date))
		err := export.WriteFile(path, func(w io.Writer) error { return export.WriteTrades(w, res.Trades) })
		if err != nil {
			log.Printf("[papertrade] export: %v", err)
		} else {
			log.Printf("[papertrade] wrote %s", path)
		}
	}
	if srv != nil {
		srv.Stop(finishCtx)
	}

	s := res.Summary
	fmt.Printf("\nSession %s: %d bars, %d trades, final equity %s, return %s%%, max drawdown %s%%\n",
		s.Date, s.Bars, s.Trades, model.FormatFixed(s.FinalEquity, 2),
		model.FormatFixed(s.TotalReturnPct, 2), model.FormatFixed(s.MaxDrawdownPct, 2))
	fmt.Printf("Polls: %d (bars %d, stale %d, empty %d, errors %d, invalid %d)\n",
		res.Stats.Polls, res.Stats.Bars, res.Stats.Stale, res.Stats.Empty, res.Stats.Errors, res.Stats.Invalid)
}

// sessionBounds returns the New York day covering date.
func sessionBounds(date string) (time.Time, time.Time, error) {
	if date == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--date is required for the replay source")
	}
	day, err := time.ParseInLocation(model.SessionDateLayout, date, markethours.NewYork)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--date %q: %w", date, err)
	}
	return day, day.Add(24*time.Hour - time.Second), nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	sinks := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return sinks
}

func trackMarketState(ctx context.Context, m *metrics.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		if markethours.IsMarketOpen(time.Now()) {
			m.MarketState.Set(1)
		} else {
			m.MarketState.Set(0)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthObserver stamps the last processed bar on /healthz.
type healthObserver struct {
	h *metrics.HealthStatus
}

func (o healthObserver) OnBar(u live.BarUpdate)   { o.h.SetLastBarTime(u.Bar.Time) }
func (o healthObserver) OnTrade(model.TradeEvent) {}

// seedHub loads today's fills from the Redis trade stream into the hub's
// replay buffer.
func seedHub(ctx context.Context, hub *gateway.Hub, rw *redisstore.Writer, symbol string) {
	events, err := rw.RecentTrades(ctx, symbol, 500)
	if err != nil {
		log.Printf("[papertrade] recent trades: %v", err)
		return
	}
	today := time.Now().In(markethours.NewYork).Format(model.SessionDateLayout)
	var keep []model.TradeEvent
	for _, ev := range events {
		if ev.Session == today {
			keep = append(keep, ev)
		}
	}
	hub.Seed(keep)
	log.Printf("[papertrade] seeded dashboard with %d fills from %s", len(keep), today)
}

// journalObserver hands each fill to the journal writer's queue.
type journalObserver struct {
	w *execution.JournalWriter
}

func (o journalObserver) OnBar(live.BarUpdate) {}

func (o journalObserver) OnTrade(ev model.TradeEvent) { o.w.Enqueue(ev) }
