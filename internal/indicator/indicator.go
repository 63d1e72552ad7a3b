// Package indicator provides technical indicators evaluated lazily over a
// candle series.
//
// Every indicator is a pure function of series position. Values are
// memoised in the series' own cache registry under the indicator's Key, so
// two instances with the same definition share work and the series keeps
// the cache aligned under append, update, eviction and truncation.
//
// Direct indicators depend only on other indicators at the same or earlier
// positions. Recursive indicators depend on their own previous value and are
// filled iteratively from the lowest uncached position.
package indicator

import (
	"github.com/shopspring/decimal"

	"barreplay/internal/series"
)

// Scale is the number of decimal places every non-exact result is rounded
// to, half away from zero.
const Scale int32 = 16

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Key identifies the computation, e.g. "ema(close,0.5)".
	Key() series.CacheKey

	// Series returns the series the indicator reads from.
	Series() series.CandleSeries

	// Value returns the indicator at position i of Series.
	Value(i int) decimal.Decimal
}

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	three   = decimal.NewFromInt(3)
	hundred = decimal.NewFromInt(100)
)

func round(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

func div(a, b decimal.Decimal) decimal.Decimal { return a.DivRound(b, Scale) }

// Direct memoises a pure function of position.
type Direct struct {
	key series.CacheKey
	s   series.CandleSeries
	fn  func(i int) decimal.Decimal
}

// NewDirect wraps fn. fn must only read positions <= i.
func NewDirect(s series.CandleSeries, key series.CacheKey, fn func(i int) decimal.Decimal) *Direct {
	return &Direct{key: key, s: s, fn: fn}
}

func (d *Direct) Key() series.CacheKey         { return d.key }
func (d *Direct) Series() series.CandleSeries { return d.s }

func (d *Direct) Value(i int) decimal.Decimal {
	c := d.s.Cache(d.key)
	if v, ok := c.Get(i); ok {
		return v
	}
	v := d.fn(i)
	c.Set(i, v)
	return v
}

// Recursive evaluates v[0] = base(0) and v[i] = step(i, v[i-1]).
type Recursive struct {
	key  series.CacheKey
	s    series.CandleSeries
	base func(i int) decimal.Decimal
	step func(i int, prev decimal.Decimal) decimal.Decimal
}

// NewRecursive wraps a base case and a step function.
func NewRecursive(s series.CandleSeries, key series.CacheKey,
	base func(i int) decimal.Decimal,
	step func(i int, prev decimal.Decimal) decimal.Decimal) *Recursive {
	return &Recursive{key: key, s: s, base: base, step: step}
}

func (r *Recursive) Key() series.CacheKey         { return r.key }
func (r *Recursive) Series() series.CandleSeries { return r.s }

// Value fills every missing slot from the lowest uncached position up to i,
// so stack depth stays constant regardless of i.
func (r *Recursive) Value(i int) decimal.Decimal {
	c := r.s.Cache(r.key)
	if v, ok := c.Get(i); ok {
		return v
	}
	j := c.FirstMissing(i)
	var prev decimal.Decimal
	if j > 0 {
		prev, _ = c.Get(j - 1)
	}
	for k := j; k <= i; k++ {
		var v decimal.Decimal
		if k == 0 {
			v = r.base(0)
		} else {
			v = r.step(k, prev)
		}
		c.Set(k, v)
		prev = v
	}
	return prev
}

// Last returns the indicator at the newest position, or false for an empty
// series.
func Last(ind Indicator) (decimal.Decimal, bool) {
	n := ind.Series().Len()
	if n == 0 {
		return decimal.Decimal{}, false
	}
	return ind.Value(n - 1), true
}
