package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barreplay/internal/series"
)

// Sum adds in over the trailing window of period positions. Near the head
// the window shrinks to the available positions.
func Sum(in Indicator, period int) *Direct {
	key := series.CacheKey(fmt.Sprintf("sum(%s,%d)", in.Key(), period))
	return NewDirect(in.Series(), key, func(i int) decimal.Decimal {
		total := zero
		for k := windowStart(i, period); k <= i; k++ {
			total = total.Add(in.Value(k))
		}
		return total
	})
}

// SMA calculates the simple moving average over a rolling window. While
// fewer than period positions exist it averages what is available.
func SMA(in Indicator, period int) *Direct {
	sum := Sum(in, period)
	key := series.CacheKey(fmt.Sprintf("sma(%s,%d)", in.Key(), period))
	return NewDirect(in.Series(), key, func(i int) decimal.Decimal {
		n := i - windowStart(i, period) + 1
		return div(sum.Value(i), decimal.NewFromInt(int64(n)))
	})
}

func windowStart(i, period int) int {
	if period < 1 {
		period = 1
	}
	if s := i - period + 1; s > 0 {
		return s
	}
	return 0
}
