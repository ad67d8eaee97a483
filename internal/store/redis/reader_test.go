package redis

import (
	"testing"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

func TestDecodeBar(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	want := time.Date(2026, time.March, 2, 10, 15, 0, 0, ny)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"rfc3339", `{"ts":"2026-03-02T15:15:00Z","close":131.42}`, false},
		{"unix seconds", `{"ts":1772464500,"close":131.42}`, false},
		{"bad ts", `{"ts":"yesterday","close":131.42}`, true},
		{"not json", `close=131.42`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar, err := decodeBar([]byte(tt.in), ny)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", bar)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeBar: %v", err)
			}
			if !bar.Time.Equal(want) || bar.Close != 131.42 {
				t.Errorf("got %+v, want %s close 131.42", bar, want)
			}
			if bar.Time.Location() != ny {
				t.Errorf("bar not converted to the exchange location: %s", bar.Time.Location())
			}
			if bar.SessionDate() != "2026-03-02" {
				t.Errorf("session date: %s", bar.SessionDate())
			}
		})
	}
}

func TestKeyLayout(t *testing.T) {
	if got := LatestBarKey("NVDA"); got != "bar:1m:latest:NVDA" {
		t.Errorf("latest key: %s", got)
	}
	if got := TradeStream("NVDA"); got != "trades:NVDA" {
		t.Errorf("trade stream: %s", got)
	}
	if got := TradeChannel("NVDA"); got != "pub:trades:NVDA" {
		t.Errorf("trade channel: %s", got)
	}
}

func TestDecodeTrades_StreamOrder(t *testing.T) {
	ts := time.Date(2026, time.March, 2, 14, 31, 0, 0, time.UTC)
	buy := model.TradeEvent{Session: "2026-03-02", Time: ts, Side: model.SideBuy, Price: 100.02}
	sell := model.TradeEvent{Session: "2026-03-02", Time: ts.Add(6 * time.Minute), Side: model.SideSell,
		Price: 101.5, Reason: model.ReasonSignal}

	// XREVRANGE returns newest first.
	msgs := []goredis.XMessage{
		{ID: "3-0", Values: map[string]interface{}{"data": string(sell.JSON())}},
		{ID: "2-0", Values: map[string]interface{}{"data": "{broken"}},
		{ID: "1-5", Values: map[string]interface{}{"other": "x"}},
		{ID: "1-0", Values: map[string]interface{}{"data": string(buy.JSON())}},
	}
	got := decodeTrades(msgs)
	if len(got) != 2 {
		t.Fatalf("decoded %d fills, want 2: %+v", len(got), got)
	}
	if got[0].Side != model.SideBuy || !got[0].Time.Equal(ts) {
		t.Errorf("first fill should be the entry: %+v", got[0])
	}
	if got[1].Side != model.SideSell || got[1].Reason != model.ReasonSignal {
		t.Errorf("second fill should be the exit: %+v", got[1])
	}
	if len(decodeTrades(nil)) != 0 {
		t.Error("empty stream should decode to no fills")
	}
}
