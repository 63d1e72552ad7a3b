package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barreplay/internal/series"
)

// EMA calculates an exponential moving average of in with the given
// multiplier: ema[0] = in[0], ema[i] = (in[i] - ema[i-1]) * m + ema[i-1].
func EMA(in Indicator, multiplier decimal.Decimal) *Recursive {
	key := series.CacheKey(fmt.Sprintf("ema(%s,%s)", in.Key(), multiplier.String()))
	return NewRecursive(in.Series(), key,
		in.Value,
		func(i int, prev decimal.Decimal) decimal.Decimal {
			return round(in.Value(i).Sub(prev).Mul(multiplier).Add(prev))
		})
}

// EMAPeriod is EMA with the conventional multiplier 2 / (period + 1).
func EMAPeriod(in Indicator, period int) *Recursive {
	return EMA(in, div(two, decimal.NewFromInt(int64(period)+1)))
}
