// Package markethours knows the US equity regular session
// (09:30–16:00 America/New_York, Mon–Fri, excluding exchange holidays).
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // bundled zone database for hosts without one
)

// NewYork is the exchange location. Falls back to a fixed EST offset when
// the zone database is unavailable.
var NewYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// Regular session hours in New York time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0

	// The live driver keeps polling one minute past the close so the 15:59
	// bar is still seen.
	SessionEndGraceMinutes = 1
)

// InSession returns true if t falls within the regular session window,
// inclusive of the 16:00 closing bar, on a trading day.
func InSession(t time.Time) bool {
	ny := t.In(NewYork)
	if !IsTradingDay(ny) {
		return false
	}
	hm := ny.Hour()*60 + ny.Minute()
	return hm >= OpenHour*60+OpenMinute && hm <= CloseHour*60+CloseMinute
}

// IsMarketOpen returns true while the market is trading (close exclusive).
func IsMarketOpen(t time.Time) bool {
	ny := t.In(NewYork)
	if !IsTradingDay(ny) {
		return false
	}
	hm := ny.Hour()*60 + ny.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri in New York.
func IsWeekday(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ny := t.In(NewYork)
	return IsWeekday(ny) && !IsHoliday(ny)
}

// TodayOpen returns the regular open on t's New York calendar day.
func TodayOpen(t time.Time) time.Time {
	ny := t.In(NewYork)
	return time.Date(ny.Year(), ny.Month(), ny.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
}

// TodayClose returns the regular close on t's New York calendar day.
func TodayClose(t time.Time) time.Time {
	ny := t.In(NewYork)
	return time.Date(ny.Year(), ny.Month(), ny.Day(), CloseHour, CloseMinute, 0, 0, NewYork)
}

// SessionEnd returns the boundary at which a live run stops: today's close
// plus the grace minute.
func SessionEnd(t time.Time) time.Time {
	return TodayClose(t).Add(SessionEndGraceMinutes * time.Minute)
}

// SessionEndAt returns a SessionEnd-like function for a configured
// "HH:MM" New York wall-clock boundary.
func SessionEndAt(hhmm string) (func(time.Time) time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return nil, fmt.Errorf("session end %q: %w", hhmm, err)
	}
	return func(t time.Time) time.Time {
		ny := t.In(NewYork)
		return time.Date(ny.Year(), ny.Month(), ny.Day(), clock.Hour(), clock.Minute(), 0, 0, NewYork)
	}, nil
}

// NextOpen returns the next regular open at or after t.
func NextOpen(t time.Time) time.Time {
	ny := t.In(NewYork)

	open := TodayOpen(ny)
	if ny.Before(open) && IsTradingDay(ny) {
		return open
	}

	d := ny.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return TodayOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return TodayOpen(ny.AddDate(0, 0, 1))
}

// TimeUntilClose returns the duration until today's close, or 0 after it.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	ny := next.In(NewYork)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		ny.Weekday().String()[:3], ny.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
