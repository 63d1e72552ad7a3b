package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the replay core from the concrete candle store
// and live-update transports.

// CandleSource supplies a finite, time-ordered run of candles for a range.
type CandleSource interface {
	// ReadCandles returns candles with from <= open time <= to, oldest first.
	// A zero to means "no upper bound".
	ReadCandles(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// CandleSink accepts candle writes.
type CandleSink interface {
	// WriteCandles upserts candles keyed by (symbol, tf, open time).
	WriteCandles(ctx context.Context, symbol string, tf Timeframe, candles []Candle) error

	// Close releases underlying resources.
	Close() error
}

// SeriesUpdate is one applied mutation of a live series, as delivered to
// presentation consumers.
type SeriesUpdate struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"tf"`
	Kind      string    `json:"kind"` // append, update, remove, prepend
	Len       int       `json:"len"`
	Candle    Candle    `json:"candle"`
}

// Channel returns the pub/sub channel name: "candle:{tf}:{symbol}".
func (u SeriesUpdate) Channel() string {
	return "candle:" + u.Timeframe.Label() + ":" + u.Symbol
}

// UpdatePublisher pushes live updates to an external transport.
type UpdatePublisher interface {
	Publish(ctx context.Context, u SeriesUpdate) error
	Close() error
}
