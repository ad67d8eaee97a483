package sqlite

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// ReadBars reads bars for symbol within [from, to], ordered by timestamp
// ascending. A zero from or to leaves that side unbounded.
func (s *BarStore) ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, close
		FROM bars
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			tsUnix int64
			b      model.Bar
		)
		if err := rows.Scan(&tsUnix, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Time = time.Unix(tsUnix, 0).In(s.loc)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadSession reads the bars of one session date ("2006-01-02").
func (s *BarStore) ReadSession(ctx context.Context, symbol, date string) ([]model.Bar, error) {
	day, err := time.ParseInLocation(model.SessionDateLayout, date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("session date %q: %w", date, err)
	}
	return s.ReadBars(ctx, symbol, day, day.AddDate(0, 0, 1).Add(-time.Second))
}

// CountBars returns the number of stored bars for symbol.
func (s *BarStore) CountBars(ctx context.Context, symbol string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bars WHERE symbol = ?`, symbol).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count bars: %w", err)
	}
	return n, nil
}
