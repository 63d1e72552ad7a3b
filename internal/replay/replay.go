// Package replay reveals historical candles step by step.
//
// A BarReplay owns the replay clock (offset and intrabar state) and drives
// any number of sessions in lockstep. Each session owns a replay series that
// grows as the clock advances; session-aware sessions also maintain
// higher-timeframe series resampled from it.
package replay

import (
	"errors"
	"fmt"

	"barreplay/internal/model"
)

var (
	// ErrRewind is returned when a session is asked to reveal an offset
	// before the one it currently shows. Rewinding goes through Reset.
	ErrRewind = errors.New("replay: cannot move backwards without reset")

	// ErrInputExhausted is returned when the input series has no candle at
	// the requested offset.
	ErrInputExhausted = errors.New("replay: input series exhausted")
)

// Session is one series being replayed.
type Session interface {
	Timeframe() model.Timeframe

	// AddCandle reveals the full candle at offset.
	AddCandle(offset int) error

	// AddCandleAt reveals the candle at offset synthesised at state. Calling
	// it again for the same offset replaces the partial candle.
	AddCandleAt(offset int, state CandleState) error

	// Reset returns the session to its initial index.
	Reset() error
}

// Factory builds a session positioned at the replay's current offset and
// state.
type Factory func(offset int, state CandleState) (Session, error)

// BarReplay is the replay state machine.
// Not safe for concurrent use; callers serialise access.
type BarReplay struct {
	tf       model.Timeframe
	mode     Mode
	offset   int
	state    CandleState
	sessions []Session

	// OnAdvance, when set, is called after every successful Advance.
	OnAdvance func(mode Mode, state CandleState, offset int)
}

// New creates a replay for sessions of timeframe tf.
func New(tf model.Timeframe, mode Mode) *BarReplay {
	return &BarReplay{tf: tf, mode: mode, state: Close}
}

func (r *BarReplay) Timeframe() model.Timeframe { return r.tf }
func (r *BarReplay) Mode() Mode                 { return r.mode }
func (r *BarReplay) Offset() int                { return r.offset }
func (r *BarReplay) State() CandleState         { return r.state }

// SetMode switches the update mode. Switching mid-bar is allowed: the next
// FullBar step completes the partial candle.
func (r *BarReplay) SetMode(m Mode) { r.mode = m }

// Sessions returns the registered sessions in registration order.
func (r *BarReplay) Sessions() []Session {
	return append([]Session(nil), r.sessions...)
}

// Advance moves the replay one step forward.
//
// In FullBar mode every session reveals the full candle at offset and offset
// increases. In OHLC mode the intrabar state moves to the next value in the
// cycle, every session reveals the candle at that state, and offset
// increases only once the state reaches Close.
//
// If any session fails the clock does not move; the sessions that succeeded
// show the next step already and will update it in place on retry.
func (r *BarReplay) Advance() error {
	state := Close
	if r.mode == OHLC {
		state = r.state.Next()
	}

	var errs []error
	for _, s := range r.sessions {
		var err error
		if r.mode == FullBar {
			err = s.AddCandle(r.offset)
		} else {
			err = s.AddCandleAt(r.offset, state)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("advance offset %d (%s): %w", r.offset, state, errors.Join(errs...))
	}

	r.state = state
	if state == Close {
		r.offset++
	}
	if r.OnAdvance != nil {
		r.OnAdvance(r.mode, r.state, r.offset)
	}
	return nil
}

// NewSession builds a session through factory, exactly once, at the current
// offset and state, and registers it. A session whose timeframe differs from
// the replay's is rejected.
func (r *BarReplay) NewSession(factory Factory) (Session, error) {
	s, err := factory(r.offset, r.state)
	if err != nil {
		return nil, err
	}
	if s.Timeframe() != r.tf {
		return nil, &model.TimeframeMismatchError{Want: r.tf, Got: s.Timeframe()}
	}
	r.sessions = append(r.sessions, s)
	return s, nil
}

// RemoveSession deregisters s. The session's own data is left untouched.
func (r *BarReplay) RemoveSession(s Session) bool {
	for i, x := range r.sessions {
		if x == s {
			r.sessions = append(r.sessions[:i:i], r.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// Reset resets every session and rewinds the clock to offset 0, Close.
func (r *BarReplay) Reset() error {
	var errs []error
	for _, s := range r.sessions {
		if err := s.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	r.offset = 0
	r.state = Close
	if len(errs) > 0 {
		return fmt.Errorf("reset: %w", errors.Join(errs...))
	}
	return nil
}
