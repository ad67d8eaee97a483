package backtest

import (
	"sort"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// Session is the bars of one trading day, in time order.
type Session struct {
	Date string
	Bars []model.Bar
}

// GroupSessions partitions bars by calendar date. Groups are returned in
// order of first appearance; bars of a date that reappears later join the
// existing group rather than starting a new one.
func GroupSessions(bars []model.Bar) []Session {
	index := make(map[string]int)
	var sessions []Session
	for _, b := range bars {
		date := b.SessionDate()
		i, ok := index[date]
		if !ok {
			i = len(sessions)
			index[date] = i
			sessions = append(sessions, Session{Date: date})
		}
		sessions[i].Bars = append(sessions[i].Bars, b)
	}
	return sessions
}

// SelectRecent keeps the n latest session dates, preserving the input order.
// n <= 0 keeps every session.
func SelectRecent(sessions []Session, n int) []Session {
	if n <= 0 || len(sessions) <= n {
		return sessions
	}
	dates := make([]string, len(sessions))
	for i, s := range sessions {
		dates[i] = s.Date
	}
	sort.Strings(dates)
	cutoff := dates[len(dates)-n]

	out := make([]Session, 0, n)
	for _, s := range sessions {
		if s.Date >= cutoff {
			out = append(out, s)
		}
	}
	return out
}
