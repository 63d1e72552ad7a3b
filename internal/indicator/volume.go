package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barreplay/internal/series"
	"barreplay/internal/session"
)

// MoneyFlow is typical price times volume.
func MoneyFlow(s series.CandleSeries) *Direct {
	tp := TypicalPrice(s)
	return NewDirect(s, "mf", func(i int) decimal.Decimal {
		return round(tp.Value(i).Mul(s.At(i).Volume))
	})
}

// PositiveMoneyFlow is MoneyFlow when typical price rose versus the previous
// position, else 0.
func PositiveMoneyFlow(s series.CandleSeries) *Direct {
	return directionalFlow(s, "pmf", 1)
}

// NegativeMoneyFlow is MoneyFlow when typical price fell, else 0.
func NegativeMoneyFlow(s series.CandleSeries) *Direct {
	return directionalFlow(s, "nmf", -1)
}

func directionalFlow(s series.CandleSeries, key series.CacheKey, sign int) *Direct {
	tp := TypicalPrice(s)
	mf := MoneyFlow(s)
	return NewDirect(s, key, func(i int) decimal.Decimal {
		if i == 0 {
			return zero
		}
		if tp.Value(i).Cmp(tp.Value(i-1)) == sign {
			return mf.Value(i)
		}
		return zero
	})
}

// SessionCumulative restarts at in[i] on every session start and otherwise
// adds in[i] to the previous cumulative value.
func SessionCumulative(in Indicator, start session.Start) *Recursive {
	s := in.Series()
	key := series.CacheKey(fmt.Sprintf("cum(%s,%s)", in.Key(), start.Key()))
	return NewRecursive(s, key,
		in.Value,
		func(i int, prev decimal.Decimal) decimal.Decimal {
			if start.IsSessionStart(s, i) {
				return in.Value(i)
			}
			return prev.Add(in.Value(i))
		})
}

// VWAP is cumulative(typical price * volume) / cumulative(volume) within each
// session, or 0 while the session has traded no volume.
func VWAP(s series.CandleSeries, start session.Start) *Direct {
	pv := SessionCumulative(MoneyFlow(s), start)
	vol := SessionCumulative(Volume(s), start)
	key := series.CacheKey(fmt.Sprintf("vwap(%s)", start.Key()))
	return NewDirect(s, key, func(i int) decimal.Decimal {
		v := vol.Value(i)
		if v.IsZero() {
			return zero
		}
		return div(pv.Value(i), v)
	})
}

// MFI is the Money Flow Index over period positions, with the same edge
// cases as RSI.
func MFI(s series.CandleSeries, period int) *Direct {
	pos := Sum(PositiveMoneyFlow(s), period)
	neg := Sum(NegativeMoneyFlow(s), period)
	key := series.CacheKey(fmt.Sprintf("mfi(%d)", period))
	return NewDirect(s, key, func(i int) decimal.Decimal {
		return strengthIndex(pos.Value(i), neg.Value(i))
	})
}
