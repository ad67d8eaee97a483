package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

type captureNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *captureNotifier) Send(ctx context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return c.err
}

func TestTradeAlert(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

	buy := TradeAlert("NVDA", model.TradeEvent{Time: ts, Side: model.SideBuy, Price: 100.02, RSI: 18.456, Shares: 99.98})
	if buy.Level != AlertInfo || buy.Title != "NVDA BUY @ 100.0200" {
		t.Errorf("buy alert: %+v", buy)
	}
	if buy.Message != "RSI 18.46, 99.9800 shares" {
		t.Errorf("buy message: %q", buy.Message)
	}

	stop := TradeAlert("NVDA", model.TradeEvent{Time: ts, Side: model.SideSell, Price: 97.9, RSI: 12,
		Reason: model.ReasonStop, ReturnPct: -2.12, Cash: 9788})
	if stop.Level != AlertWarning || stop.Title != "NVDA SELL (STOP) @ 97.9000" {
		t.Errorf("stop alert: %+v", stop)
	}
	if !strings.Contains(stop.Message, "return -2.120%") {
		t.Errorf("stop message: %q", stop.Message)
	}
	if !stop.Time.Equal(ts) {
		t.Errorf("alert time: %v", stop.Time)
	}
	if stop.Symbol != "NVDA" || stop.Trade == nil || stop.Trade.Reason != model.ReasonStop {
		t.Errorf("alert should carry the fill: %+v", stop)
	}
}

func TestAlerter_DeliversAfterClose(t *testing.T) {
	sink := &captureNotifier{err: errors.New("boom")}
	a := NewAlerter(sink, "NVDA", 4)
	var failures int
	a.OnFailure = func(error) { failures++ }
	go a.Run()

	a.OnTrade(model.TradeEvent{Side: model.SideBuy, Price: 100})
	a.OnTrade(model.TradeEvent{Side: model.SideSell, Price: 101, Reason: model.ReasonSignal})
	a.Close()
	a.OnTrade(model.TradeEvent{Side: model.SideBuy, Price: 102}) // dropped, no panic

	if len(sink.alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(sink.alerts))
	}
	if failures != 2 {
		t.Errorf("OnFailure calls: got %d, want 2", failures)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	ts := time.Date(2026, 3, 2, 10, 15, 0, 0, time.FixedZone("EST", -5*3600))
	alert := TradeAlert("NVDA", model.TradeEvent{Session: "2026-03-02", Time: ts, Side: model.SideSell,
		Price: 97.9, Reason: model.ReasonStop, ReturnPct: -2.12, Cash: 9788})
	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Level != AlertWarning || got.Symbol != "NVDA" || !got.Time.Equal(ts) {
		t.Errorf("payload: %+v", got)
	}
	if got.Trade == nil || got.Trade.Price != 97.9 || got.Trade.Reason != model.ReasonStop || got.Trade.Session != "2026-03-02" {
		t.Errorf("payload fill: %+v", got.Trade)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL
	if err := tg.Send(context.Background(), Alert{Level: AlertInfo, Title: "NVDA BUY @ 100.0200"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path: %s", path)
	}
	if body["chat_id"] != "42" || !strings.Contains(body["text"].(string), `100\.0200`) {
		t.Errorf("body: %v", body)
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &captureNotifier{}
	bad := &captureNotifier{err: errors.New("down")}
	err := Multi{ok, bad, NewLogNotifier()}.Send(context.Background(), Alert{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.alerts) != 1 || len(bad.alerts) != 1 {
		t.Error("every backend should receive the alert")
	}
}

func TestFillText(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 15, 0, 0, time.FixedZone("EST", -5*3600))
	tests := []struct {
		name    string
		ev      model.TradeEvent
		want    []string
		notWant []string
	}{
		{
			name:    "entry",
			ev:      model.TradeEvent{Time: ts, Side: model.SideBuy, Price: 100.02, RSI: 18.456, Shares: 99.98},
			want:    []string{"🟢 *NVDA BUY*", "Price: `100\\.0200`", "RSI: `18\\.46`", "Shares: `99\\.9800`", "Bar: `2026\\-03\\-02 10:15 EST`"},
			notWant: []string{"Return", "Cash"},
		},
		{
			name: "stop exit",
			ev: model.TradeEvent{Time: ts, Side: model.SideSell, Price: 97.9, RSI: 12, Reason: model.ReasonStop,
				ReturnPct: -2.12, Shares: 99.98, Cash: 9788},
			want: []string{"⚠️ 🔴 *NVDA SELL* STOP", "Return: `\\-2\\.120%`", "Cash: `9788\\.00`"},
		},
		{
			name:    "signal exit",
			ev:      model.TradeEvent{Time: ts, Side: model.SideSell, Price: 101.5, RSI: 66.1, Reason: model.ReasonSignal, ReturnPct: 1.48, Cash: 10148},
			want:    []string{"🔴 *NVDA SELL* SIGNAL", "Return: `1\\.480%`"},
			notWant: []string{"⚠️"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fillText("NVDA", tt.ev)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("unexpected %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestTelegramNotifier_FillAlert(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL
	alert := TradeAlert("NVDA", model.TradeEvent{Side: model.SideBuy, Price: 100.02, RSI: 18.5, Shares: 99.98})
	if err := tg.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, _ := body["text"].(string)
	if !strings.HasPrefix(text, "🟢 *NVDA BUY*") || !strings.Contains(text, "Shares: `99\\.9800`") {
		t.Errorf("fill text: %q", text)
	}
}
