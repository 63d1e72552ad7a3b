package indicator

import (
	"github.com/shopspring/decimal"

	"barreplay/internal/model"
	"barreplay/internal/series"
)

func field(s series.CandleSeries, key series.CacheKey, get func(model.Candle) decimal.Decimal) *Direct {
	return NewDirect(s, key, func(i int) decimal.Decimal { return get(s.At(i)) })
}

// Close is the close-price passthrough.
func Close(s series.CandleSeries) *Direct {
	return field(s, "close", func(c model.Candle) decimal.Decimal { return c.Close })
}

func Open(s series.CandleSeries) *Direct {
	return field(s, "open", func(c model.Candle) decimal.Decimal { return c.Open })
}

func High(s series.CandleSeries) *Direct {
	return field(s, "high", func(c model.Candle) decimal.Decimal { return c.High })
}

func Low(s series.CandleSeries) *Direct {
	return field(s, "low", func(c model.Candle) decimal.Decimal { return c.Low })
}

func Volume(s series.CandleSeries) *Direct {
	return field(s, "volume", func(c model.Candle) decimal.Decimal { return c.Volume })
}

// TypicalPrice is (high + low + close) / 3.
func TypicalPrice(s series.CandleSeries) *Direct {
	return NewDirect(s, "tp", func(i int) decimal.Decimal {
		c := s.At(i)
		return div(c.High.Add(c.Low).Add(c.Close), three)
	})
}

// TrueRange is max(|H-L|, |H-prevClose|, |prevClose-L|). At position 0 the
// previous-close terms are 0, leaving H-L.
func TrueRange(s series.CandleSeries) *Direct {
	return NewDirect(s, "tr", func(i int) decimal.Decimal {
		c := s.At(i)
		tr := c.High.Sub(c.Low).Abs()
		if i == 0 {
			return tr
		}
		prev := s.At(i - 1).Close
		tr = decimal.Max(tr, c.High.Sub(prev).Abs())
		return decimal.Max(tr, prev.Sub(c.Low).Abs())
	})
}
