package replay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barreplay/internal/model"
)

type call struct {
	offset int
	state  CandleState
	full   bool
}

type fakeSession struct {
	tf     model.Timeframe
	calls  []call
	resets int
	fail   error
}

func (f *fakeSession) Timeframe() model.Timeframe { return f.tf }

func (f *fakeSession) AddCandle(offset int) error {
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, call{offset: offset, state: Close, full: true})
	return nil
}

func (f *fakeSession) AddCandleAt(offset int, state CandleState) error {
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, call{offset: offset, state: state})
	return nil
}

func (f *fakeSession) Reset() error {
	f.resets++
	return nil
}

func register(t *testing.T, r *BarReplay, tf model.Timeframe) *fakeSession {
	t.Helper()
	fs := &fakeSession{tf: tf}
	s, err := r.NewSession(func(int, CandleState) (Session, error) { return fs, nil })
	require.NoError(t, err)
	require.Same(t, fs, s)
	return fs
}

func TestBarReplay_FullBar(t *testing.T) {
	r := New(model.TF1m, FullBar)
	a := register(t, r, model.TF1m)
	b := register(t, r, model.TF1m)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Advance())
	}

	assert.Equal(t, 3, r.Offset())
	assert.Equal(t, Close, r.State())
	want := []call{{0, Close, true}, {1, Close, true}, {2, Close, true}}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
}

func TestBarReplay_OHLCCycle(t *testing.T) {
	r := New(model.TF1m, OHLC)
	fs := register(t, r, model.TF1m)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Advance())
	}

	want := []call{
		{0, Open, false}, {0, Extreme1, false}, {0, Extreme2, false}, {0, Close, false},
		{1, Open, false},
	}
	assert.Equal(t, want, fs.calls)
	assert.Equal(t, 1, r.Offset())
	assert.Equal(t, Open, r.State())
}

func TestBarReplay_SwitchModeMidBar(t *testing.T) {
	r := New(model.TF1m, OHLC)
	fs := register(t, r, model.TF1m)
	require.NoError(t, r.Advance()) // offset 0 Open

	r.SetMode(FullBar)
	require.NoError(t, r.Advance())

	assert.Equal(t, call{0, Close, true}, fs.calls[1])
	assert.Equal(t, 1, r.Offset())
	assert.Equal(t, Close, r.State())
}

func TestBarReplay_NewSessionReceivesPosition(t *testing.T) {
	r := New(model.TF5m, OHLC)
	require.NoError(t, r.Advance())
	require.NoError(t, r.Advance())

	var gotOffset int
	var gotState CandleState
	calls := 0
	_, err := r.NewSession(func(offset int, state CandleState) (Session, error) {
		calls++
		gotOffset, gotState = offset, state
		return &fakeSession{tf: model.TF5m}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, gotOffset)
	assert.Equal(t, Extreme1, gotState)
}

func TestBarReplay_TimeframeMismatch(t *testing.T) {
	r := New(model.TF1m, FullBar)
	_, err := r.NewSession(func(int, CandleState) (Session, error) {
		return &fakeSession{tf: model.TF5m}, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTimeframeMismatch)
	assert.Empty(t, r.Sessions())

	boom := errors.New("boom")
	_, err = r.NewSession(func(int, CandleState) (Session, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestBarReplay_RemoveSession(t *testing.T) {
	r := New(model.TF1m, FullBar)
	a := register(t, r, model.TF1m)
	b := register(t, r, model.TF1m)

	assert.True(t, r.RemoveSession(a))
	assert.False(t, r.RemoveSession(a))
	require.NoError(t, r.Advance())

	assert.Empty(t, a.calls)
	assert.Len(t, b.calls, 1)
}

func TestBarReplay_Reset(t *testing.T) {
	r := New(model.TF1m, OHLC)
	fs := register(t, r, model.TF1m)
	for i := 0; i < 6; i++ {
		require.NoError(t, r.Advance())
	}

	require.NoError(t, r.Reset())
	assert.Equal(t, 0, r.Offset())
	assert.Equal(t, Close, r.State())
	assert.Equal(t, 1, fs.resets)
}

func TestBarReplay_FailedAdvanceKeepsClock(t *testing.T) {
	r := New(model.TF1m, FullBar)
	fs := register(t, r, model.TF1m)
	fs.fail = fmt.Errorf("no data: %w", ErrInputExhausted)

	err := r.Advance()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputExhausted)
	assert.Equal(t, 0, r.Offset())
}

func TestBarReplay_OnAdvanceHook(t *testing.T) {
	r := New(model.TF1m, OHLC)
	register(t, r, model.TF1m)
	var seen []CandleState
	r.OnAdvance = func(_ Mode, st CandleState, _ int) { seen = append(seen, st) }

	require.NoError(t, r.Advance())
	require.NoError(t, r.Advance())
	assert.Equal(t, []CandleState{Open, Extreme1}, seen)
}
