package replay

import (
	"fmt"
	"time"

	"barreplay/internal/model"
	"barreplay/internal/series"
)

// SimpleSession replays a single timeframe. Its replay series starts as
// input[0:initialIndex] and grows by one position per revealed offset.
type SimpleSession struct {
	input   series.CandleSeries
	initial int
	replay  *series.Mutable

	// revealed counts offsets present in the replay series; the last one
	// may be partial.
	revealed int
	partial  bool
}

var _ Session = (*SimpleSession)(nil)

// NewSimpleSession seeds a session from input at initialIndex, positioned at
// (offset, state) of the owning replay. tf is the session's timeframe and must
// match the input's. maxCandles bounds the replay series (series.Unbounded
// for none).
func NewSimpleSession(input series.CandleSeries, tf model.Timeframe, initialIndex, maxCandles, offset int, state CandleState) (*SimpleSession, error) {
	if input.Timeframe() != tf {
		return nil, &model.TimeframeMismatchError{Want: tf, Got: input.Timeframe()}
	}
	if initialIndex < 0 || initialIndex > input.Len() {
		return nil, fmt.Errorf("initial index %d outside input of %d candles: %w",
			initialIndex, input.Len(), model.ErrIndexOutOfRange)
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d: %w", offset, model.ErrIndexOutOfRange)
	}
	end := initialIndex + offset
	if end > input.Len() {
		return nil, fmt.Errorf("offset %d past input end: %w", offset, ErrInputExhausted)
	}

	seed := make([]model.Candle, 0, end+1)
	for i := 0; i < end; i++ {
		seed = append(seed, input.At(i))
	}
	partial := false
	if state != Close {
		if end >= input.Len() {
			return nil, fmt.Errorf("partial offset %d past input end: %w", offset, ErrInputExhausted)
		}
		seed = append(seed, AtState(input.At(end), state))
		partial = true
	}

	rs, err := series.NewMutable(tf, maxCandles, seed)
	if err != nil {
		return nil, fmt.Errorf("seed replay series: %w", err)
	}
	revealed := offset
	if partial {
		revealed++
	}
	return &SimpleSession{
		input:    input,
		initial:  initialIndex,
		replay:   rs,
		revealed: revealed,
		partial:  partial,
	}, nil
}

// SimpleFactory returns a Factory building SimpleSessions over input.
func SimpleFactory(input series.CandleSeries, tf model.Timeframe, initialIndex, maxCandles int) Factory {
	return func(offset int, state CandleState) (Session, error) {
		return NewSimpleSession(input, tf, initialIndex, maxCandles, offset, state)
	}
}

func (s *SimpleSession) Timeframe() model.Timeframe { return s.input.Timeframe() }

// Input returns the full historical series being replayed.
func (s *SimpleSession) Input() series.CandleSeries { return s.input }

// Series returns the replay series.
func (s *SimpleSession) Series() series.CandleSeries { return s.replay }

// InitialIndex returns the replay start position inside the input series.
func (s *SimpleSession) InitialIndex() int { return s.initial }

// Revealed returns the number of offsets shown, counting a partial candle.
func (s *SimpleSession) Revealed() int { return s.revealed }

// Partial reports whether the newest candle is a partial one.
func (s *SimpleSession) Partial() bool { return s.partial }

// OnEvict registers fn to run for every candle dropped from the head of a
// bounded replay series.
func (s *SimpleSession) OnEvict(fn func()) { s.replay.OnEvict = fn }

func (s *SimpleSession) AddCandle(offset int) error {
	return s.reveal(offset, Close)
}

func (s *SimpleSession) AddCandleAt(offset int, state CandleState) error {
	return s.reveal(offset, state)
}

// AdvanceTo reveals the input candle open at or before t, synthesised at
// state.
func (s *SimpleSession) AdvanceTo(t time.Time, state CandleState) error {
	idx := s.input.IndexAtOrBefore(t)
	if idx < s.initial {
		return fmt.Errorf("advance to %s before initial index: %w", t.UTC().Format(time.RFC3339), ErrRewind)
	}
	return s.reveal(idx-s.initial, state)
}

// reveal shows offset at state. Offsets skipped since the last reveal are
// filled with their full candles; revealing the newest offset again updates
// it in place.
func (s *SimpleSession) reveal(offset int, state CandleState) error {
	if offset < 0 || offset < s.revealed-1 {
		return fmt.Errorf("offset %d with %d revealed: %w", offset, s.revealed, ErrRewind)
	}
	idx := s.initial + offset
	if idx >= s.input.Len() {
		return fmt.Errorf("offset %d (input index %d of %d): %w", offset, idx, s.input.Len(), ErrInputExhausted)
	}

	if s.partial && offset > s.revealed-1 {
		if err := s.replay.Add(s.input.At(s.initial + s.revealed - 1)); err != nil {
			return err
		}
		s.partial = false
	}
	for k := s.revealed; k < offset; k++ {
		if err := s.replay.Add(s.input.At(s.initial + k)); err != nil {
			return err
		}
		s.revealed = k + 1
	}

	if err := s.replay.Add(AtState(s.input.At(idx), state)); err != nil {
		return err
	}
	s.revealed = offset + 1
	s.partial = state != Close
	return nil
}

// Reset truncates the replay series back to input[0:initialIndex]. Seed
// candles evicted by a bounded series are prepended again from input.
func (s *SimpleSession) Reset() error {
	remove := s.revealed
	if remove > s.replay.Len() {
		remove = s.replay.Len()
	}
	if err := s.replay.RemoveLast(remove); err != nil {
		return err
	}
	s.revealed = 0
	s.partial = false

	target := s.initial
	if max := s.replay.MaxCandles(); max > 0 && target > max {
		target = max
	}
	have := s.replay.Len()
	if have >= target {
		return nil
	}
	// the retained candles are input[initial-have : initial]
	from, to := s.initial-target, s.initial-have
	backfill := make([]model.Candle, 0, to-from)
	for i := from; i < to; i++ {
		backfill = append(backfill, s.input.At(i))
	}
	return s.replay.Prepend(backfill)
}
