// Package series holds time-ordered candle storage and the per-series
// indicator cache registry.
//
// A series has exactly one writer. Reads, including indicator evaluation,
// must be serialised with writes by the caller.
package series

import (
	"time"

	"barreplay/internal/model"
)

// CandleSeries is the read-only view of a candle store.
type CandleSeries interface {
	Timeframe() model.Timeframe
	Len() int

	// At returns the candle at position i (0 = oldest). It panics when i is
	// out of range.
	At(i int) model.Candle

	Last() (model.Candle, bool)
	First() (model.Candle, bool)

	// Candles returns a copy of the stored candles, oldest first.
	Candles() []model.Candle

	// IndexAtOrBefore returns the position of the latest candle whose open
	// time is <= t, or -1 when every candle is later than t.
	IndexAtOrBefore(t time.Time) int

	// Cache returns the indicator cache registered under key, creating it on
	// first use. Caches live and die with the series.
	Cache(key CacheKey) *IndicatorCache

	// Subscribe registers fn for every applied mutation. The returned func
	// removes the subscription.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// EventKind classifies an applied mutation.
type EventKind int

const (
	EventAppend EventKind = iota
	EventUpdate
	EventRemove
	EventPrepend
)

func (k EventKind) String() string {
	switch k {
	case EventAppend:
		return "append"
	case EventUpdate:
		return "update"
	case EventRemove:
		return "remove"
	case EventPrepend:
		return "prepend"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a mutation completed.
// Candle is the appended or updated candle; for remove it is the new last
// candle (zero when the series became empty) and for prepend the new first.
type Event struct {
	Kind   EventKind
	Candle model.Candle
	Len    int
}
