// cmd/backtest replays the last N sessions of 1-minute bars from SQLite
// through the RSI 20/65 engine, one fresh engine per session, and writes the
// ledger and per-session summaries to the journal and CSV files.
//
// Usage:
//
//	go run ./cmd/backtest --days=5 --db=data/bars.db --out=out
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/config"
	"github.com/DC0618/nvda-rsi-20-65/internal/backtest"
	"github.com/DC0618/nvda-rsi-20-65/internal/execution"
	"github.com/DC0618/nvda-rsi-20-65/internal/export"
	"github.com/DC0618/nvda-rsi-20-65/internal/logger"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
	sqlitestore "github.com/DC0618/nvda-rsi-20-65/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	flag.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "Symbol to backtest")
	flag.IntVar(&cfg.DaysToTest, "days", cfg.DaysToTest, "Number of most recent sessions to test")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "Path to the SQLite bar database")
	flag.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "Path to the SQLite trade journal (empty disables)")
	flag.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory for CSV output")
	workers := flag.Int("workers", 1, "Sessions processed in parallel")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	logger.Init("backtest", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	bars, err := store.ReadBars(ctx, cfg.Symbol, time.Time{}, time.Time{})
	if err != nil {
		log.Fatalf("[backtest] read bars: %v", err)
	}
	log.Printf("[backtest] loaded %d bars for %s", len(bars), cfg.Symbol)

	runner := &backtest.Runner{
		Params:  cfg.Params(),
		Window:  cfg.RSIWindow,
		Days:    cfg.DaysToTest,
		Workers: *workers,
		OnSession: func(s backtest.SessionResult) {
			log.Printf("[backtest] session %s: %d bars, %d trades, return %s%%",
				s.Date, s.Summary.Bars, s.Summary.Trades, model.FormatFixed(s.Summary.TotalReturnPct, 2))
		},
	}
	report, err := runner.Run(ctx, bars)
	if errors.Is(err, backtest.ErrNoData) {
		fmt.Println("No bars to backtest, nothing to do.")
		return
	}
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	if cfg.JournalPath != "" {
		runID, err := journalReport(ctx, cfg, report)
		if err != nil {
			log.Printf("[backtest] journal: %v", err)
		} else {
			ctx = logger.WithRunID(ctx, runID)
		}
	}

	if err := writeCSVs(cfg.OutDir, cfg.Symbol, report); err != nil {
		log.Fatalf("[backtest] export: %v", err)
	}

	printReport(os.Stdout, cfg.Symbol, report)
	slog.Info("backtest complete", append(logger.LogWithRun(ctx),
		"symbol", cfg.Symbol, "sessions", len(report.Sessions), "trades", len(report.Trades))...)
}

func journalReport(ctx context.Context, cfg *config.Config, report backtest.Report) (string, error) {
	j, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		return "", err
	}
	defer j.Close()

	runID, err := j.StartRun(ctx, "backtest", cfg.Symbol, cfg.Params())
	if err != nil {
		return "", err
	}
	if err := j.RecordTrades(ctx, runID, report.Trades); err != nil {
		return runID, err
	}
	if err := j.RecordSummaries(ctx, runID, report.Summaries); err != nil {
		return runID, err
	}
	if err := j.FinishRun(ctx, runID); err != nil {
		return runID, err
	}
	log.Printf("[backtest] journaled run %s (%d trades)", runID, len(report.Trades))
	return runID, nil
}

func writeCSVs(dir, symbol string, report backtest.Report) error {
	files := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{"trades", func(w io.Writer) error { return export.WriteTrades(w, report.Trades) }},
		{"summaries", func(w io.Writer) error { return export.WriteSummaries(w, report.Summaries) }},
		{"studies", func(w io.Writer) error { return export.WriteStudies(w, report.Studies) }},
	}
	for _, f := range files {
		path := filepath.Join(dir, fmt.Sprintf("%s_backtest_%s.csv", symbol, f.name))
		if err := export.WriteFile(path, f.fn); err != nil {
			return err
		}
		log.Printf("[backtest] wrote %s", path)
	}
	return nil
}

func printReport(w io.Writer, symbol string, report backtest.Report) {
	fmt.Fprintf(w, "\n%s RSI backtest, %d sessions\n\n", symbol, len(report.Summaries))
	fmt.Fprintf(w, "%-12s %6s %7s %14s %10s %9s %9s\n", "date", "bars", "trades", "final_equity", "return_%", "win_%", "max_dd_%")
	for _, s := range report.Summaries {
		fmt.Fprintf(w, "%-12s %6d %7d %14s %10s %9s %9s\n",
			s.Date, s.Bars, s.Trades,
			model.FormatFixed(s.FinalEquity, 2),
			model.FormatFixed(s.TotalReturnPct, 2),
			winRate(s.WinRatePct),
			model.FormatFixed(s.MaxDrawdownPct, 2))
	}

	t := report.Totals()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sessions:          %d\n", t.Sessions)
	fmt.Fprintf(w, "Trades:            %d\n", t.Trades)
	fmt.Fprintf(w, "Compounded return: %s%%\n", model.FormatFixed(t.CompoundedReturnPct, 2))
	fmt.Fprintf(w, "Average daily:     %s%%\n", model.FormatFixed(t.AvgReturnPct, 2))
	fmt.Fprintf(w, "Win rate:          %s\n", winRate(t.WinRatePct))
	fmt.Fprintf(w, "Worst drawdown:    %s%%\n", model.FormatFixed(t.WorstDrawdownPct, 2))
}

func winRate(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return model.FormatFixed(*p, 1)
}
