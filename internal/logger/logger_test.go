package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := InitWriter(&buf, "test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Debug("hidden")
	slog.Info("hello", "n", 1)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "test-service" {
		t.Errorf("expected service attr, got %v", line["service"])
	}
	if line["msg"] != "hello" {
		t.Errorf("expected msg hello, got %v", line["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplayID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := ReplayID(ctx); id != "" {
		t.Errorf("expected empty replay id, got %q", id)
	}
	ctx = WithReplayID(ctx, "run-123")
	if id := ReplayID(ctx); id != "run-123" {
		t.Errorf("expected 'run-123', got %q", id)
	}
}

func TestNewReplayID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewReplayID("NIFTY", "5m", ts)
	if !strings.HasPrefix(id, "NIFTY-5m-") {
		t.Errorf("expected id to start with 'NIFTY-5m-', got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected id to contain nanoseconds, got %s", id)
	}
}

func TestAttrs(t *testing.T) {
	if attrs := Attrs(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs without replay id, got %v", attrs)
	}
	attrs := Attrs(WithReplayID(context.Background(), "abc"))
	if len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}
}
