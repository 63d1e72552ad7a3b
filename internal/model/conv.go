package model

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DecimalFromFloat converts an upstream float. NaN and ±Inf are rejected,
// never coerced to zero.
func DecimalFromFloat(field string, f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, &DomainArithmeticError{Field: field, Value: strconv.FormatFloat(f, 'g', -1, 64)}
	}
	return decimal.NewFromFloat(f), nil
}

// DecimalFromString parses an exact decimal literal.
func DecimalFromString(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &DomainArithmeticError{Field: field, Value: s}
	}
	return d, nil
}

// CandleFromStrings builds a candle from textual OHLCV fields, as read from
// CSV files or TEXT columns.
func CandleFromStrings(openTime time.Time, open, high, low, close, volume string) (Candle, error) {
	fields := [...]struct {
		name string
		raw  string
	}{
		{"open", open}, {"high", high}, {"low", low}, {"close", close}, {"volume", volume},
	}
	var vals [5]decimal.Decimal
	for i, f := range fields {
		d, err := DecimalFromString(f.name, f.raw)
		if err != nil {
			return Candle{}, err
		}
		vals[i] = d
	}
	return Candle{
		OpenTime: openTime.UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

// CandleFromFloats builds a candle from float OHLCV values.
func CandleFromFloats(openTime time.Time, open, high, low, close, volume float64) (Candle, error) {
	raw := [...]struct {
		name string
		v    float64
	}{
		{"open", open}, {"high", high}, {"low", low}, {"close", close}, {"volume", volume},
	}
	var vals [5]decimal.Decimal
	for i, f := range raw {
		d, err := DecimalFromFloat(f.name, f.v)
		if err != nil {
			return Candle{}, err
		}
		vals[i] = d
	}
	return Candle{
		OpenTime: openTime.UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
