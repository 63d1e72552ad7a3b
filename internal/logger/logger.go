// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries a replay
// id through context.Context so every line of one replay run can be joined.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const replayIDKey ctxKey = "replay_id"

// Init creates a JSON logger for the given service writing to stdout and
// installs it as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps "debug", "info", "warn" or "error" (any case) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// WithReplayID stores a replay id in the context.
func WithReplayID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, replayIDKey, id)
}

// ReplayID extracts the replay id from context. Returns "" if not set.
func ReplayID(ctx context.Context) string {
	if v, ok := ctx.Value(replayIDKey).(string); ok {
		return v
	}
	return ""
}

// NewReplayID builds "{symbol}-{tf}-{unixNano}".
func NewReplayID(symbol, tf string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-%d", symbol, tf, ts.UnixNano())
}

// Attrs returns slog attributes carrying the replay id from ctx.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	id := ReplayID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("replay_id", id)}
}
