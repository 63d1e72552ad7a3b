package replay

import (
	"fmt"

	"barreplay/internal/model"
	"barreplay/internal/series"
	"barreplay/internal/session"
)

// SessionAware is a SimpleSession that also maintains higher-timeframe
// series resampled from its replay series. Resampled series are created on
// first request and follow every later reveal incrementally.
type SessionAware struct {
	*SimpleSession

	cal       session.Calendar
	maxCandle int
	resampled map[model.Timeframe]*resampledSeries
	order     []model.Timeframe

	// set when an incremental update failed; the next Resampled call rebuilds
	err error
}

type resampledSeries struct {
	start session.Start
	out   *series.Mutable
}

// NewSessionAware seeds a session like NewSimpleSession. cal picks the
// session-start strategy per resampled timeframe.
func NewSessionAware(input series.CandleSeries, tf model.Timeframe, initialIndex, maxCandles, offset int, state CandleState, cal session.Calendar) (*SessionAware, error) {
	simple, err := NewSimpleSession(input, tf, initialIndex, maxCandles, offset, state)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		cal = session.UTCCalendar{}
	}
	s := &SessionAware{
		SimpleSession: simple,
		cal:           cal,
		maxCandle:     maxCandles,
		resampled:     make(map[model.Timeframe]*resampledSeries),
	}
	simple.replay.Subscribe(s.onBase)
	return s, nil
}

// SessionAwareFactory returns a Factory building SessionAware sessions.
func SessionAwareFactory(input series.CandleSeries, tf model.Timeframe, initialIndex, maxCandles int, cal session.Calendar) Factory {
	return func(offset int, state CandleState) (Session, error) {
		return NewSessionAware(input, tf, initialIndex, maxCandles, offset, state, cal)
	}
}

// Resampled returns the replay series resampled to tf, building it from the
// current replay series on first access.
func (s *SessionAware) Resampled(tf model.Timeframe) (series.CandleSeries, error) {
	if tf <= s.Timeframe() {
		return nil, fmt.Errorf("resample %s from %s: target must be longer: %w",
			tf, s.Timeframe(), model.ErrTimeframeMismatch)
	}
	if s.err != nil {
		s.err = nil
		for _, rs := range s.resampled {
			if err := rs.rebuild(s.replay); err != nil {
				s.err = err
				return nil, err
			}
		}
	}
	if rs, ok := s.resampled[tf]; ok {
		return rs.out, nil
	}

	start := s.cal.For(tf)
	out, err := series.NewMutable(tf, s.maxCandle, Resample(s.replay, start))
	if err != nil {
		return nil, fmt.Errorf("resample %s: %w", tf, err)
	}
	s.resampled[tf] = &resampledSeries{start: start, out: out}
	s.order = append(s.order, tf)
	return out, nil
}

// ResampledTimeframes lists the timeframes materialised so far.
func (s *SessionAware) ResampledTimeframes() []model.Timeframe {
	return append([]model.Timeframe(nil), s.order...)
}

// onBase keeps every resampled series in step with an append or update of
// the replay series. Remove and prepend are handled by Reset.
func (s *SessionAware) onBase(ev series.Event) {
	if ev.Kind != series.EventAppend && ev.Kind != series.EventUpdate {
		return
	}
	for _, tf := range s.order {
		rs := s.resampled[tf]
		if err := rs.follow(s.replay, ev); err != nil && s.err == nil {
			s.err = err
		}
	}
}

// Reset truncates the replay series to the initial index and rebuilds the
// tail of every resampled series: aggregates newer than the last base run
// are dropped and the last aggregate is replaced if it changed.
func (s *SessionAware) Reset() error {
	if err := s.SimpleSession.Reset(); err != nil {
		return err
	}
	s.err = nil
	for _, tf := range s.order {
		if err := s.resampled[tf].rebuild(s.replay); err != nil {
			return fmt.Errorf("rebuild %s: %w", tf, err)
		}
	}
	return nil
}

// follow applies one base mutation.
func (rs *resampledSeries) follow(base series.CandleSeries, ev series.Event) error {
	i := base.Len() - 1
	last, ok := rs.out.Last()
	switch {
	case ok && ev.Kind == series.EventAppend && rs.start.IsSessionStart(base, i):
		return rs.out.Add(ev.Candle)
	case ok && ev.Kind == series.EventAppend:
		return rs.out.Add(last.Merge(ev.Candle))
	default:
		// an update cannot be merged into the aggregate; re-reduce the run
		return rs.out.Add(rs.runAggregate(base))
	}
}

// runAggregate reduces the newest base run. When a bounded base has evicted
// the head of that run, the aggregate keeps the stored open time and open.
func (rs *resampledSeries) runAggregate(base series.CandleSeries) model.Candle {
	from := lastRun(base, rs.start)
	agg := reduceFrom(base, from)
	if last, ok := rs.out.Last(); ok && from == 0 && last.OpenTime.Before(agg.OpenTime) {
		agg.OpenTime, agg.Open = last.OpenTime, last.Open
	}
	return agg
}

// rebuild realigns the tail with the current base series. If the base now
// reaches further back than the resampled series, the whole series is
// recomputed.
func (rs *resampledSeries) rebuild(base series.CandleSeries) error {
	if base.Len() == 0 {
		return rs.out.RemoveLast(rs.out.Len())
	}
	if first, ok := rs.out.First(); !ok || base.At(0).OpenTime.Before(first.OpenTime) {
		if err := rs.out.RemoveLast(rs.out.Len()); err != nil {
			return err
		}
		for _, c := range Resample(base, rs.start) {
			if err := rs.out.Add(c); err != nil {
				return err
			}
		}
		return nil
	}

	runStart := base.At(lastRun(base, rs.start)).OpenTime
	drop := 0
	for k := rs.out.Len() - 1; k >= 0 && rs.out.At(k).OpenTime.After(runStart); k-- {
		drop++
	}
	if err := rs.out.RemoveLast(drop); err != nil {
		return err
	}
	agg := rs.runAggregate(base)
	if last, ok := rs.out.Last(); ok && last.Equal(agg) {
		return nil
	}
	return rs.out.Add(agg)
}
