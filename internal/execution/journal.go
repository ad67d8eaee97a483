package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists runs, fills and session summaries to SQLite for analysis
// and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		params      TEXT NOT NULL,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		session     TEXT NOT NULL,
		ts          DATETIME NOT NULL,
		side        TEXT NOT NULL,
		price       REAL NOT NULL,
		rsi         REAL NOT NULL,
		reason      TEXT,
		return_pct  REAL,
		shares      REAL NOT NULL,
		cash        REAL NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, session);
	CREATE TABLE IF NOT EXISTS session_summaries (
		run_id           TEXT NOT NULL,
		date             TEXT NOT NULL,
		bars             INTEGER NOT NULL,
		trades           INTEGER NOT NULL,
		final_equity     REAL NOT NULL,
		total_return_pct REAL NOT NULL,
		win_rate_pct     REAL,
		max_drawdown_pct REAL NOT NULL,
		PRIMARY KEY (run_id, date)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// StartRun registers a run and returns its generated id.
func (j *Journal) StartRun(ctx context.Context, mode, symbol string, params Params) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("journal params: %w", err)
	}
	id := uuid.NewString()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, symbol, params, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, mode, symbol, string(p), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("journal start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's completion time.
func (j *Journal) FinishRun(ctx context.Context, runID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339), runID,
	)
	return err
}

// RecordTrades persists fills in a single transaction.
func (j *Journal) RecordTrades(ctx context.Context, runID string, events []model.TradeEvent) error {
	if len(events) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (run_id, session, ts, side, price, rsi, reason, return_pct, shares, cash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		var (
			reason    sql.NullString
			returnPct sql.NullFloat64
		)
		if ev.IsExit() {
			reason = sql.NullString{String: string(ev.Reason), Valid: true}
			returnPct = sql.NullFloat64{Float64: ev.ReturnPct, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			runID,
			ev.Session,
			ev.Time.Format(time.RFC3339),
			string(ev.Side),
			ev.Price,
			ev.RSI,
			reason,
			returnPct,
			ev.Shares,
			ev.Cash,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("journal insert trade: %w", err)
		}
	}
	return tx.Commit()
}

// RecordTrade persists a single fill.
func (j *Journal) RecordTrade(ctx context.Context, runID string, ev model.TradeEvent) error {
	return j.RecordTrades(ctx, runID, []model.TradeEvent{ev})
}

// RecordSummaries upserts per-session summaries in a single transaction.
func (j *Journal) RecordSummaries(ctx context.Context, runID string, sums []model.SessionSummary) error {
	if len(sums) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO session_summaries
		 (run_id, date, bars, trades, final_equity, total_return_pct, win_rate_pct, max_drawdown_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range sums {
		var wr sql.NullFloat64
		if s.WinRatePct != nil {
			wr = sql.NullFloat64{Float64: *s.WinRatePct, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, s.Date, s.Bars, s.Trades,
			s.FinalEquity, s.TotalReturnPct, wr, s.MaxDrawdownPct); err != nil {
			tx.Rollback()
			return fmt.Errorf("journal insert summary: %w", err)
		}
	}
	return tx.Commit()
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID        int64    `json:"id"`
	RunID     string   `json:"run_id"`
	Session   string   `json:"session"`
	Time      string   `json:"ts"`
	Side      string   `json:"side"`
	Price     float64  `json:"price"`
	RSI       float64  `json:"rsi"`
	Reason    string   `json:"reason,omitempty"`
	ReturnPct *float64 `json:"return_pct,omitempty"`
	Shares    float64  `json:"shares"`
	Cash      float64  `json:"cash"`
}

// GetTrades returns a run's fills in insertion order, at most limit rows
// (limit <= 0 means all).
func (j *Journal) GetTrades(ctx context.Context, runID string, limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, session, ts, side, price, rsi, reason, return_pct, shares, cash
		 FROM trades WHERE run_id = ? ORDER BY id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var (
			t      TradeRecord
			reason sql.NullString
			ret    sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.RunID, &t.Session, &t.Time, &t.Side,
			&t.Price, &t.RSI, &reason, &ret, &t.Shares, &t.Cash); err != nil {
			return nil, fmt.Errorf("journal scan trade: %w", err)
		}
		t.Reason = reason.String
		if ret.Valid {
			v := ret.Float64
			t.ReturnPct = &v
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetSummaries returns a run's session summaries ordered by date.
func (j *Journal) GetSummaries(ctx context.Context, runID string) ([]model.SessionSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT date, bars, trades, final_equity, total_return_pct, win_rate_pct, max_drawdown_pct
		 FROM session_summaries WHERE run_id = ? ORDER BY date ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionSummary
	for rows.Next() {
		var (
			s  model.SessionSummary
			wr sql.NullFloat64
		)
		if err := rows.Scan(&s.Date, &s.Bars, &s.Trades, &s.FinalEquity,
			&s.TotalReturnPct, &wr, &s.MaxDrawdownPct); err != nil {
			return nil, fmt.Errorf("journal scan summary: %w", err)
		}
		if wr.Valid {
			v := wr.Float64
			s.WinRatePct = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
