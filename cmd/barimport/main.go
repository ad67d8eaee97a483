// cmd/barimport loads a CSV of 1-minute bars into the SQLite bar store,
// keeping regular-hours bars only. With --redis the newest imported bar is
// also published as the latest bar, which lets a paper run be smoke-tested
// without a live feed.
//
// Usage:
//
//	go run ./cmd/barimport --file=nvda_1m.csv --db=data/bars.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/DC0618/nvda-rsi-20-65/config"
	"github.com/DC0618/nvda-rsi-20-65/internal/logger"
	"github.com/DC0618/nvda-rsi-20-65/internal/markethours"
	"github.com/DC0618/nvda-rsi-20-65/internal/marketdata/csvbars"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
	redisstore "github.com/DC0618/nvda-rsi-20-65/internal/store/redis"
	sqlitestore "github.com/DC0618/nvda-rsi-20-65/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[barimport] %v", err)
	}
	flag.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "Symbol the bars belong to")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "Path to the SQLite bar database")
	file := flag.String("file", "", "CSV file with a timestamp and a close column")
	allHours := flag.Bool("all-hours", false, "Keep pre- and post-market bars")
	toRedis := flag.Bool("redis", false, "Publish the newest bar to Redis as the latest bar")
	flag.Parse()

	if *file == "" {
		log.Fatal("[barimport] --file is required")
	}
	logger.Init("barimport", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("[barimport] %v", err)
	}
	defer f.Close()

	reader, err := csvbars.NewReader(f, markethours.NewYork)
	if err != nil {
		log.Fatalf("[barimport] %v", err)
	}

	store, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[barimport] sqlite open failed: %v", err)
	}
	defer store.Close()

	barCh := make(chan model.Bar, 1024)
	done := make(chan int, 1)
	go func() {
		done <- store.Run(ctx, cfg.Symbol, barCh)
	}()

	var read, outside int
	var newest model.Bar
	for {
		bar, err := reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[barimport] stopped at read error: %v", err)
			}
			break
		}
		read++
		if !*allHours && !markethours.InSession(bar.Time) {
			outside++
			continue
		}
		if bar.Time.After(newest.Time) {
			newest = bar
		}
		select {
		case barCh <- bar:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(barCh)
	stored := <-done

	fmt.Printf("Read %d bars (%d unparsable rows skipped), %d outside regular hours, %d stored for %s\n",
		read, reader.Skipped, outside, stored, cfg.Symbol)

	if *toRedis && !newest.Time.IsZero() {
		rw, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("[barimport] redis: %v", err)
		}
		defer rw.Close()
		if err := rw.SetLatestBar(ctx, cfg.Symbol, newest); err != nil {
			log.Fatalf("[barimport] redis: %v", err)
		}
		log.Printf("[barimport] published latest bar %s close=%v", newest.Time.Format("2006-01-02 15:04"), newest.Close)
	}
}
