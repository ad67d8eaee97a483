// Package sqlite stores 1-minute bars for backtests and replays.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/markethours"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the bar store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"

	// Location bars are returned in; session dates are taken in it.
	// Defaults to America/New_York.
	Location *time.Location
}

// BarStore is a single-writer SQLite bar table with transaction batching.
type BarStore struct {
	db  *sql.DB
	loc *time.Location
}

// DB returns the underlying sql.DB for health checks.
func (s *BarStore) DB() *sql.DB { return s.db }

// Open creates the store, initializing the database with WAL mode and schema.
func Open(cfg Config) (*BarStore, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	loc := cfg.Location
	if loc == nil {
		loc = markethours.NewYork
	}

	log.Printf("[sqlite] opened bar store at %s", cfg.DBPath)
	return &BarStore{db: db, loc: loc}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			close  REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// WriteBars upserts bars for symbol in a single transaction. Malformed bars
// are skipped; the number written is returned.
func (s *BarStore) WriteBars(ctx context.Context, symbol string, bars []model.Bar) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, symbol, b.Time.Unix(), b.Close); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("sqlite insert bar: %w", err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	return n, nil
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batch of bars OR every flush delay, whichever first.
// Blocks until ctx is cancelled or barCh is closed and returns the number
// of bars committed.
func (s *BarStore) Run(ctx context.Context, symbol string, barCh <-chan model.Bar) int {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	total := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// Use a fresh context so the final flush survives cancellation.
		n, err := s.WriteBars(context.Background(), symbol, batch)
		if err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			total += n
			log.Printf("[sqlite] committed %d bars in %v", n, time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return total

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return total
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// LastTimestamp returns the last stored bar time for symbol, or the zero
// time when none exist.
func (s *BarStore) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ?`, symbol,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite last ts: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).In(s.loc), nil
}

// Close closes the store.
func (s *BarStore) Close() error {
	return s.db.Close()
}
