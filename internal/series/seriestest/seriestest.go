// Package seriestest provides deterministic candle fixtures for tests.
package seriestest

import (
	"time"

	"github.com/shopspring/decimal"

	"barreplay/internal/model"
)

// Epoch is the open time of the first generated candle (a Monday, UTC).
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Candle builds a candle from string literals.
func Candle(t time.Time, o, h, l, c, v string) model.Candle {
	return model.Candle{OpenTime: t, Open: D(o), High: D(h), Low: D(l), Close: D(c), Volume: D(v)}
}

// Flat builds a candle whose four prices equal price.
func Flat(t time.Time, price, volume string) model.Candle {
	return Candle(t, price, price, price, price, volume)
}

// Candles generates n candles of timeframe tf starting at Epoch.
// Prices follow a deterministic zigzag around 100 with varying range so
// gains, losses and both extreme orders all occur.
func Candles(n int, tf model.Timeframe) []model.Candle {
	out := make([]model.Candle, n)
	price := decimal.NewFromInt(100)
	for i := 0; i < n; i++ {
		step := decimal.NewFromInt(int64(i%7) - 3).Div(decimal.NewFromInt(4)) // -0.75 .. 0.75
		open := price
		closeP := open.Add(step)
		wick := decimal.NewFromInt(int64(i%5) + 1).Div(decimal.NewFromInt(10))
		high := decimal.Max(open, closeP).Add(wick)
		low := decimal.Min(open, closeP).Sub(wick.Div(decimal.NewFromInt(2)))
		if i%3 == 0 {
			// make the low the nearer extreme on every third bar
			low = decimal.Min(open, closeP).Sub(decimal.NewFromFloat(0.05))
			high = decimal.Max(open, closeP).Add(wick.Mul(decimal.NewFromInt(2)))
		}
		out[i] = model.Candle{
			OpenTime: Epoch.Add(time.Duration(i) * tf.Duration()),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   decimal.NewFromInt(int64(1000 + (i%11)*150)),
		}
		price = closeP
	}
	return out
}

// At returns the open time of the i-th generated candle.
func At(i int, tf model.Timeframe) time.Time {
	return Epoch.Add(time.Duration(i) * tf.Duration())
}
