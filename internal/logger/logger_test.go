package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", "info")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := RunID(ctx); id != "" {
		t.Errorf("expected empty run id, got %q", id)
	}

	ctx = WithRunID(ctx, "run-123")
	if id := RunID(ctx); id != "run-123" {
		t.Errorf("expected 'run-123', got %q", id)
	}
}

func TestLogWithRun(t *testing.T) {
	ctx := context.Background()
	if attrs := LogWithRun(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no run id, got %v", attrs)
	}

	var buf bytes.Buffer
	log := New(&buf, "papertrade", slog.LevelInfo)
	ctx = WithRunID(ctx, "abc-123")
	log.Info("fill", LogWithRun(ctx)...)
	log.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "papertrade" || rec["run_id"] != "abc-123" || rec["msg"] != "fill" {
		t.Errorf("record: %v", rec)
	}
}
