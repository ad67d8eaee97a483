package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// TelegramNotifier sends alerts via Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier for the bot token and
// target chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	text := alertText(alert)
	if alert.Trade != nil {
		text = fillText(alert.Symbol, *alert.Trade)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}

func alertText(alert Alert) string {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}
	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	if !alert.Time.IsZero() {
		text += "\n_" + escapeMarkdown(alert.Time.Format("15:04 MST")) + "_"
	}
	return text
}

// fillText renders one fill as a MarkdownV2 message, one field per line.
func fillText(symbol string, ev model.TradeEvent) string {
	var b strings.Builder
	field := func(name, value string) {
		fmt.Fprintf(&b, "\n%s: `%s`", name, escapeMarkdown(value))
	}

	head := "🟢 *" + escapeMarkdown(symbol) + " BUY*"
	if ev.IsExit() {
		head = "🔴 *" + escapeMarkdown(symbol) + " SELL* " + escapeMarkdown(string(ev.Reason))
		if ev.Reason == model.ReasonStop {
			head = "⚠️ " + head
		}
	}
	b.WriteString(head)
	field("Price", model.FormatFixed(ev.Price, 4))
	field("RSI", model.FormatFixed(ev.RSI, 2))
	field("Shares", model.FormatFixed(ev.Shares, 4))
	if ev.IsExit() {
		field("Return", model.FormatFixed(ev.ReturnPct, 3)+"%")
		field("Cash", model.FormatFixed(ev.Cash, 2))
	}
	if !ev.Time.IsZero() {
		field("Bar", ev.Time.Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
