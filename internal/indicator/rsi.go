package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barreplay/internal/series"
)

// Gain is the positive change of in versus the previous position, else 0.
func Gain(in Indicator) *Direct {
	key := series.CacheKey(fmt.Sprintf("gain(%s)", in.Key()))
	return NewDirect(in.Series(), key, func(i int) decimal.Decimal {
		if i == 0 {
			return zero
		}
		return decimal.Max(in.Value(i).Sub(in.Value(i-1)), zero)
	})
}

// Loss mirrors Gain for falling values, reported as a positive number.
func Loss(in Indicator) *Direct {
	key := series.CacheKey(fmt.Sprintf("loss(%s)", in.Key()))
	return NewDirect(in.Series(), key, func(i int) decimal.Decimal {
		if i == 0 {
			return zero
		}
		return decimal.Max(in.Value(i-1).Sub(in.Value(i)), zero)
	})
}

// RSI calculates the Relative Strength Index with Wilder's smoothing.
// When average loss is 0 the result is 100, or 0 if average gain is 0 too.
func RSI(in Indicator, period int) *Direct {
	avgGain := MMA(Gain(in), period)
	avgLoss := MMA(Loss(in), period)
	key := series.CacheKey(fmt.Sprintf("rsi(%s,%d)", in.Key(), period))
	return NewDirect(in.Series(), key, func(i int) decimal.Decimal {
		return strengthIndex(avgGain.Value(i), avgLoss.Value(i))
	})
}

// strengthIndex maps an up/down ratio onto [0, 100].
func strengthIndex(up, down decimal.Decimal) decimal.Decimal {
	if down.IsZero() {
		if up.IsZero() {
			return zero
		}
		return hundred
	}
	rs := div(up, down)
	return round(hundred.Sub(div(hundred, one.Add(rs))))
}
