package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// BarPoller reads the latest completed bar written by the feed under
// bar:1m:latest:{symbol}. It implements live.Source.
type BarPoller struct {
	client *goredis.Client
	key    string
	loc    *time.Location
}

// NewBarPoller creates a poller on w's connection. Bars are returned in loc
// so session dates are taken on the exchange calendar.
func NewBarPoller(w *Writer, symbol string, loc *time.Location) *BarPoller {
	if loc == nil {
		loc = time.UTC
	}
	return &BarPoller{client: w.client, key: LatestBarKey(symbol), loc: loc}
}

// LatestBar returns the current latest bar. A missing key is not an error.
func (p *BarPoller) LatestBar(ctx context.Context) (model.Bar, bool, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return model.Bar{}, false, nil
		}
		return model.Bar{}, false, fmt.Errorf("redis get %s: %w", p.key, err)
	}
	bar, err := decodeBar(data, p.loc)
	if err != nil {
		return model.Bar{}, false, err
	}
	return bar, true, nil
}

// decodeBar parses the feed's JSON bar ({"ts": RFC3339 or unix seconds,
// "close": number}).
func decodeBar(data []byte, loc *time.Location) (model.Bar, error) {
	var raw struct {
		TS    json.RawMessage `json:"ts"`
		Close float64         `json:"close"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Bar{}, fmt.Errorf("decode bar: %w", err)
	}

	var ts time.Time
	var unix int64
	if err := json.Unmarshal(raw.TS, &unix); err == nil {
		ts = time.Unix(unix, 0)
	} else if err := json.Unmarshal(raw.TS, &ts); err != nil {
		return model.Bar{}, fmt.Errorf("decode bar ts %s: %w", raw.TS, err)
	}
	return model.Bar{Time: ts.In(loc), Close: raw.Close}, nil
}
