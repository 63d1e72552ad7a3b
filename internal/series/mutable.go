package series

import (
	"fmt"
	"sort"
	"time"

	"barreplay/internal/model"
	"barreplay/internal/ringbuf"
)

// Unbounded disables head eviction.
const Unbounded = 0

// Mutable is the only mutator of candle data. It keeps every registered
// IndicatorCache aligned with candle positions under append, update,
// eviction, prepend and truncation.
type Mutable struct {
	tf      model.Timeframe
	max     int
	candles *ringbuf.Ring[model.Candle]
	caches  map[CacheKey]*IndicatorCache

	subs    []subscriber
	nextSub int

	// OnEvict, when set, is called once per candle dropped from the head.
	OnEvict func()
}

var _ CandleSeries = (*Mutable)(nil)

// NewMutable creates a series with the given timeframe and bound
// (Unbounded for none), loading initial through Add. Initial candles beyond
// the bound evict the oldest ones.
func NewMutable(tf model.Timeframe, maxCandles int, initial []model.Candle) (*Mutable, error) {
	if maxCandles < 0 {
		return nil, fmt.Errorf("series: negative max candle count %d", maxCandles)
	}
	hint := len(initial)
	if maxCandles > 0 && hint > maxCandles {
		hint = maxCandles
	}
	m := &Mutable{
		tf:      tf,
		max:     maxCandles,
		candles: ringbuf.New[model.Candle](hint),
		caches:  make(map[CacheKey]*IndicatorCache),
	}
	for _, c := range initial {
		if err := m.Add(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mutable) Timeframe() model.Timeframe { return m.tf }
func (m *Mutable) Len() int                   { return m.candles.Len() }
func (m *Mutable) MaxCandles() int            { return m.max }

func (m *Mutable) At(i int) model.Candle { return m.candles.At(i) }

func (m *Mutable) Last() (model.Candle, bool) {
	if m.candles.Len() == 0 {
		return model.Candle{}, false
	}
	return m.candles.At(m.candles.Len() - 1), true
}

func (m *Mutable) First() (model.Candle, bool) {
	if m.candles.Len() == 0 {
		return model.Candle{}, false
	}
	return m.candles.At(0), true
}

func (m *Mutable) Candles() []model.Candle { return m.candles.Slice() }

func (m *Mutable) IndexAtOrBefore(t time.Time) int {
	n := m.candles.Len()
	// first index whose open time is after t
	k := sort.Search(n, func(i int) bool { return m.candles.At(i).OpenTime.After(t) })
	return k - 1
}

func (m *Mutable) Cache(key CacheKey) *IndicatorCache {
	c, ok := m.caches[key]
	if !ok {
		c = newIndicatorCache(key, m.candles.Len())
		m.caches[key] = c
	}
	return c
}

func (m *Mutable) Subscribe(fn func(Event)) func() {
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Add appends c, or replaces the last candle when the open times match.
// A candle older than the last one is rejected with *model.OutOfOrderError.
func (m *Mutable) Add(c model.Candle) error {
	n := m.candles.Len()
	if n > 0 {
		last := m.candles.At(n - 1)
		switch {
		case c.OpenTime.Equal(last.OpenTime):
			m.candles.Set(n-1, c)
			for _, cache := range m.caches {
				cache.Invalidate(n - 1)
			}
			m.emit(Event{Kind: EventUpdate, Candle: c, Len: n})
			return nil
		case c.OpenTime.Before(last.OpenTime):
			return &model.OutOfOrderError{Op: "add", Last: last.OpenTime, Got: c.OpenTime}
		}
	}

	m.candles.PushBack(c)
	if m.max > 0 && m.candles.Len() > m.max {
		m.candles.PopFront()
		for _, cache := range m.caches {
			if cache.Len() > 0 {
				cache.dropFront()
			}
		}
		if m.OnEvict != nil {
			m.OnEvict()
		}
	}
	m.emit(Event{Kind: EventAppend, Candle: c, Len: m.candles.Len()})
	return nil
}

// Prepend inserts older candles at the head. list is oldest first and must be
// strictly ascending and entirely older than the current first candle.
// Every cache is cleared since recursive values depend on the head.
func (m *Mutable) Prepend(list []model.Candle) error {
	if len(list) == 0 {
		return nil
	}
	for i := 1; i < len(list); i++ {
		if !list[i].OpenTime.After(list[i-1].OpenTime) {
			return &model.OutOfOrderError{Op: "prepend", Last: list[i-1].OpenTime, Got: list[i].OpenTime}
		}
	}
	if first, ok := m.First(); ok {
		newest := list[len(list)-1]
		if !newest.OpenTime.Before(first.OpenTime) {
			return &model.OutOfOrderError{Op: "prepend", Last: newest.OpenTime, Got: first.OpenTime}
		}
	}
	if m.max > 0 && m.candles.Len()+len(list) > m.max {
		return fmt.Errorf("prepend %d candles onto %d (max %d): %w",
			len(list), m.candles.Len(), m.max, model.ErrCapacityExceeded)
	}

	m.candles.Reserve(len(list))
	for i := len(list) - 1; i >= 0; i-- {
		m.candles.PushFront(list[i])
	}
	for _, cache := range m.caches {
		cache.clear()
	}
	m.emit(Event{Kind: EventPrepend, Candle: list[0], Len: m.candles.Len()})
	return nil
}

// RemoveLast drops the newest n candles and the matching cache tails.
func (m *Mutable) RemoveLast(n int) error {
	if n < 0 || n > m.candles.Len() {
		return fmt.Errorf("remove %d of %d candles: %w", n, m.candles.Len(), model.ErrIndexOutOfRange)
	}
	if n == 0 {
		return nil
	}
	keep := m.candles.Len() - n
	m.candles.Truncate(keep)
	for _, cache := range m.caches {
		cache.truncate(keep)
	}
	last, _ := m.Last()
	m.emit(Event{Kind: EventRemove, Candle: last, Len: keep})
	return nil
}

type subscriber struct {
	id int
	fn func(Event)
}

// emit notifies subscribers in registration order.
func (m *Mutable) emit(ev Event) {
	for _, s := range m.subs {
		s.fn(ev)
	}
}
