package indicator

import (
	"encoding/json"
	"fmt"
)

// Snapshot holds the serialized state of an RSI so a live run can resume
// the oscillator after a restart without replaying the session.
type Snapshot struct {
	Type      string  `json:"type"` // always "RSI"
	Window    int     `json:"window"`
	Count     int     `json:"count"`
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`
	Current   float64 `json:"current"`
}

// JSON returns the encoded snapshot (ignoring errors; all fields are plain).
func (s Snapshot) JSON() []byte {
	out, _ := json.Marshal(s)
	return out
}

// ParseSnapshot decodes a snapshot produced by Snapshot.JSON.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode rsi snapshot: %w", err)
	}
	return s, nil
}

// Snapshot captures the oscillator state.
func (r *RSI) Snapshot() Snapshot {
	return Snapshot{
		Type:      r.Name(),
		Window:    r.window,
		Count:     r.count,
		PrevClose: r.prevClose,
		AvgGain:   r.avgGain,
		AvgLoss:   r.avgLoss,
		Current:   r.current,
	}
}

// Restore overwrites the oscillator state from snap. The window must match;
// restoring a differently configured oscillator would silently change its
// smoothing.
func (r *RSI) Restore(snap Snapshot) error {
	if snap.Type != "" && snap.Type != r.Name() {
		return fmt.Errorf("snapshot type %q, want %q", snap.Type, r.Name())
	}
	if snap.Window != r.window {
		return fmt.Errorf("snapshot window %d, oscillator window %d", snap.Window, r.window)
	}
	if snap.Count < 0 {
		return fmt.Errorf("snapshot count %d", snap.Count)
	}
	r.count = snap.Count
	r.prevClose = snap.PrevClose
	r.avgGain = snap.AvgGain
	r.avgLoss = snap.AvgLoss
	r.current = snap.Current
	if r.count < 2 {
		r.current = Neutral
	}
	return nil
}

// Peek returns the value Update(price) would produce, without mutating the
// oscillator. Used to preview a forming bar.
func (r *RSI) Peek(price float64) float64 {
	if r.count == 0 {
		return Neutral
	}
	gain, loss := split(price - r.prevClose)
	if r.count == 1 {
		return value(gain, loss)
	}
	return value(
		(1-r.alpha)*r.avgGain+r.alpha*gain,
		(1-r.alpha)*r.avgLoss+r.alpha*loss,
	)
}
