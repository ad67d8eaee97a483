package model

import (
	"encoding/json"
	"math"
	"time"
)

// SessionDateLayout is the key format used to group bars into sessions.
const SessionDateLayout = "2006-01-02"

// Bar is a single 1-minute close for the traded symbol.
// Time is session-local (America/New_York for US equities).
type Bar struct {
	Time  time.Time `json:"ts"`
	Close float64   `json:"close"`
}

// Valid reports whether the bar can be fed to the oscillator and the engine.
// Zero, negative and non-finite closes are rejected.
func (b Bar) Valid() bool {
	if b.Time.IsZero() {
		return false
	}
	if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
		return false
	}
	return b.Close > 0
}

// SessionDate returns the calendar date of the bar in its own location.
func (b Bar) SessionDate() string {
	return b.Time.Format(SessionDateLayout)
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// ValidBars drops malformed bars, keeping order. The input slice is not modified.
func ValidBars(bars []Bar) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out
}

// Closes extracts the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
