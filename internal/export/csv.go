// Package export writes ledgers, session summaries and session studies as
// CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

var (
	tradeHeader   = []string{"date", "time", "side", "price", "rsi", "reason", "return_pct", "shares", "cash"}
	summaryHeader = []string{"date", "bars", "trades", "final_equity", "total_return_pct", "win_rate_pct", "max_drawdown_pct"}
	studyHeader   = []string{"date", "bars", "min_rsi", "max_rsi", "hit_buy_threshold", "hit_sell_threshold"}
)

// WriteTrades writes the ledger, one row per fill, session date first.
// Entry rows leave reason and return_pct empty.
func WriteTrades(w io.Writer, trades []model.TradeEvent) error {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		reason, ret := "", ""
		if t.IsExit() {
			reason = string(t.Reason)
			ret = model.FormatFixed(t.ReturnPct, 3)
		}
		rows = append(rows, []string{
			t.Session,
			t.Time.Format(time.RFC3339),
			string(t.Side),
			model.FormatFixed(t.Price, 4),
			model.FormatFixed(t.RSI, 2),
			reason,
			ret,
			ftoa(t.Shares),
			model.FormatFixed(t.Cash, 2),
		})
	}
	return writeAll(w, tradeHeader, rows)
}

// WriteSummaries writes one row per session. An undefined win rate is an
// empty cell.
func WriteSummaries(w io.Writer, sums []model.SessionSummary) error {
	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		wr := ""
		if s.WinRatePct != nil {
			wr = model.FormatFixed(*s.WinRatePct, 1)
		}
		rows = append(rows, []string{
			s.Date,
			strconv.Itoa(s.Bars),
			strconv.Itoa(s.Trades),
			model.FormatFixed(s.FinalEquity, 2),
			model.FormatFixed(s.TotalReturnPct, 2),
			wr,
			model.FormatFixed(s.MaxDrawdownPct, 2),
		})
	}
	return writeAll(w, summaryHeader, rows)
}

// WriteStudies writes session studies (chart annotation data).
func WriteStudies(w io.Writer, studies []model.SessionStudy) error {
	rows := make([][]string, 0, len(studies))
	for _, s := range studies {
		rows = append(rows, []string{
			s.Date,
			strconv.Itoa(s.Bars),
			model.FormatFixed(s.MinRSI, 1),
			model.FormatFixed(s.MaxRSI, 1),
			strconv.FormatBool(s.HitBuy),
			strconv.FormatBool(s.HitSell),
		})
	}
	return writeAll(w, studyHeader, rows)
}

// WriteFile creates path (and its directory) and writes into it with fn.
func WriteFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export mkdir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export create: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func ftoa(x float64) string { return strconv.FormatFloat(x, 'f', 6, 64) }
