// Package model holds the value types shared by every layer of the replay
// engine: candles, timeframes, the error taxonomy and the storage ports.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar keyed by its open time.
// Prices and volume are exact decimals; binary floats never enter the core.
type Candle struct {
	OpenTime time.Time       `json:"ts"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Equal reports structural equality. Decimals are compared by value, so
// 1.0 and 1.00 are the same price.
func (c Candle) Equal(o Candle) bool {
	return c.OpenTime.Equal(o.OpenTime) &&
		c.Open.Equal(o.Open) &&
		c.High.Equal(o.High) &&
		c.Low.Equal(o.Low) &&
		c.Close.Equal(o.Close) &&
		c.Volume.Equal(o.Volume)
}

// Merge folds next into c using the resampling rule: the open side comes from
// c, the close side from next, extremes widen and volume accumulates.
// Merge is associative, so a run can be reduced in one pass or incrementally.
func (c Candle) Merge(next Candle) Candle {
	return Candle{
		OpenTime: c.OpenTime,
		Open:     c.Open,
		High:     decimal.Max(c.High, next.High),
		Low:      decimal.Min(c.Low, next.Low),
		Close:    next.Close,
		Volume:   c.Volume.Add(next.Volume),
	}
}

// Reduce merges a non-empty run of candles left to right.
func Reduce(run []Candle) Candle {
	agg := run[0]
	for _, c := range run[1:] {
		agg = agg.Merge(c)
	}
	return agg
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
