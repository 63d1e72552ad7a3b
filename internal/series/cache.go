package series

import (
	"github.com/shopspring/decimal"

	"barreplay/internal/ringbuf"
)

// CacheKey identifies one indicator computation, e.g. "ema(close,0.5)".
// Two indicator instances with the same key share cached values.
type CacheKey string

type slot struct {
	v  decimal.Decimal
	ok bool
}

// IndicatorCache is a sparse, position-indexed store of computed values.
// Position i always refers to the candle at position i of the owning series.
// It may be shorter than the series; missing tail slots read as absent.
type IndicatorCache struct {
	key   CacheKey
	slots *ringbuf.Ring[slot]
}

func newIndicatorCache(key CacheKey, hint int) *IndicatorCache {
	return &IndicatorCache{key: key, slots: ringbuf.New[slot](hint)}
}

// Key returns the computation key.
func (c *IndicatorCache) Key() CacheKey { return c.key }

// Len returns the number of tracked positions (present or absent).
func (c *IndicatorCache) Len() int { return c.slots.Len() }

// Get returns the value at i when present.
func (c *IndicatorCache) Get(i int) (decimal.Decimal, bool) {
	if i < 0 || i >= c.slots.Len() {
		return decimal.Decimal{}, false
	}
	s := c.slots.At(i)
	return s.v, s.ok
}

// Set stores v at i, growing the cache with absent slots as needed.
func (c *IndicatorCache) Set(i int, v decimal.Decimal) {
	if i < 0 {
		return
	}
	for c.slots.Len() <= i {
		c.slots.PushBack(slot{})
	}
	c.slots.Set(i, slot{v: v, ok: true})
}

// Invalidate marks i absent.
func (c *IndicatorCache) Invalidate(i int) {
	if i >= 0 && i < c.slots.Len() {
		c.slots.Set(i, slot{})
	}
}

// FirstMissing returns the lowest j <= i such that every slot in [j, i] is
// absent. When i itself is present it returns i+1.
func (c *IndicatorCache) FirstMissing(i int) int {
	if _, ok := c.Get(i); ok {
		return i + 1
	}
	j := i
	for j > 0 {
		if _, ok := c.Get(j - 1); ok {
			break
		}
		j--
	}
	return j
}

func (c *IndicatorCache) dropFront() {
	c.slots.PopFront()
}

func (c *IndicatorCache) truncate(n int) {
	c.slots.Truncate(n)
}

func (c *IndicatorCache) clear() {
	c.slots.Clear()
}
