package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"barreplay/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int, coolDown time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(max, coolDown)
	cb.now = clk.now
	return cb, clk
}

var errFail = errors.New("fail")

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })
	if cb.CurrentState() != StateClosed {
		t.Errorf("non-consecutive failures must not trip, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2, 50*time.Millisecond)
	var transitions []State
	cb.OnStateChange = func(_, to State) { transitions = append(transitions, to) }

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(60 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after probe, got %v", cb.CurrentState())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)

	cb.Execute(func() error { return errFail })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after failed probe, got %v", cb.CurrentState())
	}
	clk.advance(500 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("cool-down restarts on failed probe, got %v", err)
	}
}

type fakePublisher struct {
	fail bool
	got  []model.SeriesUpdate
}

func (f *fakePublisher) Publish(_ context.Context, u model.SeriesUpdate) error {
	if f.fail {
		return errFail
	}
	f.got = append(f.got, u)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestBufferedPublisher_BuffersAndReplaysInOrder(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	fp := &fakePublisher{fail: true}
	bp := NewBufferedPublisher(fp, cb, 3)
	buffered, flushed := 0, 0
	bp.OnBuffer = func() { buffered++ }
	bp.OnFlush = func(n int) { flushed += n }
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := bp.Publish(ctx, model.SeriesUpdate{Symbol: "NIFTY", Len: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if bp.PendingCount() != 3 {
		t.Fatalf("expected 3 pending (oldest dropped), got %d", bp.PendingCount())
	}
	if buffered != 4 {
		t.Errorf("expected 4 buffer callbacks, got %d", buffered)
	}

	fp.fail = false
	clk.advance(2 * time.Second)
	if err := bp.Publish(ctx, model.SeriesUpdate{Symbol: "NIFTY", Len: 4}); err != nil {
		t.Fatal(err)
	}
	if bp.PendingCount() != 0 {
		t.Errorf("expected empty buffer, got %d", bp.PendingCount())
	}
	if flushed != 3 {
		t.Errorf("expected 3 flushed, got %d", flushed)
	}
	for i, u := range fp.got {
		if u.Len != i+1 {
			t.Errorf("update %d has len %d, want %d", i, u.Len, i+1)
		}
	}
}
