package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"barreplay/internal/indicator"
	"barreplay/internal/metrics"
	"barreplay/internal/model"
	"barreplay/internal/session"
)

// SnapshotSource returns the newest saved indicator snapshot of a series.
type SnapshotSource interface {
	ReadLatestSnapshot(ctx context.Context, symbol string, tf model.Timeframe) (indicator.Snapshot, bool, error)
}

// CalendarFor maps a config calendar name to its session calendar.
func CalendarFor(name string) (session.Calendar, error) {
	switch strings.ToLower(name) {
	case "", "utc":
		return session.UTCCalendar{}, nil
	case "nse":
		return session.ExchangeCalendar{Hours: session.NSE()}, nil
	default:
		return nil, fmt.Errorf("unknown calendar %q", name)
	}
}

// LoadCandles reads the replay input from src. An empty range is an error:
// there is nothing to replay. prom may be nil.
func LoadCandles(ctx context.Context, src model.CandleSource, symbol string, tf model.Timeframe, from, to time.Time, prom *metrics.Metrics) ([]model.Candle, error) {
	start := time.Now()
	candles, err := src.ReadCandles(ctx, symbol, tf, from, to)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", symbol, tf, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("load %s %s: no candles in range", symbol, tf)
	}
	if prom != nil {
		prom.CandlesLoaded.WithLabelValues(tf.Label()).Add(float64(len(candles)))
	}
	slog.InfoContext(ctx, "candles loaded",
		"symbol", symbol, "tf", tf.Label(), "count", len(candles),
		"first", candles[0].OpenTime, "last", candles[len(candles)-1].OpenTime,
		"took", time.Since(start))
	return candles, nil
}

// ResumeIndex returns the initial index that continues a replay after the
// newest saved snapshot: one past the candle the snapshot was taken at.
// Without a snapshot it returns fallback.
func ResumeIndex(ctx context.Context, src SnapshotSource, symbol string, tf model.Timeframe, candles []model.Candle, fallback int) (int, error) {
	snap, ok, err := src.ReadLatestSnapshot(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("read latest snapshot: %w", err)
	}
	if !ok {
		return fallback, nil
	}
	idx := 0
	for idx < len(candles) && !candles[idx].OpenTime.After(snap.TS) {
		idx++
	}
	slog.InfoContext(ctx, "resuming after snapshot", "ts", snap.TS, "initial_index", idx)
	return idx, nil
}
