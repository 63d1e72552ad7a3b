package indicator

import (
	"github.com/shopspring/decimal"

	"barreplay/internal/series"
)

// MMA is the modified (Wilder's smoothed) moving average: an EMA with
// multiplier 1 / period.
func MMA(in Indicator, period int) *Recursive {
	return EMA(in, div(one, decimal.NewFromInt(int64(period))))
}

// ATR is the MMA of TrueRange.
func ATR(s series.CandleSeries, period int) *Recursive {
	return MMA(TrueRange(s), period)
}
