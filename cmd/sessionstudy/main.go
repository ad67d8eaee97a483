// cmd/sessionstudy profiles the oscillator over one stored session: its
// range and whether the entry and exit thresholds were touched. The one-row
// CSV is the annotation data for a price/RSI chart of the day.
//
// Usage:
//
//	go run ./cmd/sessionstudy --date=2026-03-02
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/config"
	"github.com/DC0618/nvda-rsi-20-65/internal/backtest"
	"github.com/DC0618/nvda-rsi-20-65/internal/export"
	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/logger"
	"github.com/DC0618/nvda-rsi-20-65/internal/markethours"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
	sqlitestore "github.com/DC0618/nvda-rsi-20-65/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[sessionstudy] %v", err)
	}
	flag.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "Symbol to study")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "Path to the SQLite bar database")
	flag.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory for CSV output")
	date := flag.String("date", "", "Session date, YYYY-MM-DD (default: latest stored session)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[sessionstudy] %v", err)
	}
	logger.Init("sessionstudy", cfg.LogLevel)
	ctx := context.Background()

	store, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[sessionstudy] sqlite open failed: %v", err)
	}
	defer store.Close()

	if *date == "" {
		last, err := store.LastTimestamp(ctx, cfg.Symbol)
		if err != nil {
			log.Fatalf("[sessionstudy] %v", err)
		}
		if last.IsZero() {
			fmt.Println("No bars stored, nothing to do.")
			return
		}
		*date = last.In(markethours.NewYork).Format(model.SessionDateLayout)
	}

	bars, err := store.ReadSession(ctx, cfg.Symbol, *date)
	if err != nil {
		log.Fatalf("[sessionstudy] %v", err)
	}
	bars = model.ValidBars(bars)
	if len(bars) == 0 {
		fmt.Printf("No bars for %s on %s, nothing to do.\n", cfg.Symbol, *date)
		return
	}

	rsi := indicator.ComputeRSI(model.Closes(bars), cfg.RSIWindow)
	study := backtest.Study(*date, rsi, cfg.Params())

	path := filepath.Join(cfg.OutDir, fmt.Sprintf("%s_study_%s.csv", cfg.Symbol, *date))
	err = export.WriteFile(path, func(w io.Writer) error {
		return export.WriteStudies(w, []model.SessionStudy{study})
	})
	if err != nil {
		log.Fatalf("[sessionstudy] export: %v", err)
	}

	fmt.Printf("%s %s: %d bars %s to %s\n", cfg.Symbol, *date, study.Bars,
		bars[0].Time.Format(time.Kitchen), bars[len(bars)-1].Time.Format(time.Kitchen))
	fmt.Printf("RSI range %s to %s, buy < %v touched: %v, sell > %v touched: %v\n",
		model.FormatFixed(study.MinRSI, 1), model.FormatFixed(study.MaxRSI, 1),
		cfg.BuyRSI, study.HitBuy, cfg.SellRSI, study.HitSell)
	log.Printf("[sessionstudy] wrote %s", path)
}
