package ringbuf

import (
	"testing"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New[int](4)

	r.PushBack(1)
	r.PushBack(2)

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.PopFront()
	if !ok || got != 1 {
		t.Fatalf("expected 1, got %v ok=%v", got, ok)
	}

	got, ok = r.PopFront()
	if !ok || got != 2 {
		t.Fatalf("expected 2, got %v ok=%v", got, ok)
	}

	if _, ok = r.PopFront(); ok {
		t.Fatal("pop from empty should return false")
	}
	if _, ok = r.PopBack(); ok {
		t.Fatal("pop back from empty should return false")
	}
}

func TestRing_PushFrontKeepsOrder(t *testing.T) {
	r := New[int](2)
	r.PushBack(3)
	r.PushFront(2)
	r.PushFront(1) // forces growth
	r.PushBack(4)

	want := []int{1, 2, 3, 4}
	got := r.Slice()
	if len(got) != len(want) {
		t.Fatalf("expected len=%d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] || r.At(i) != want[i] {
			t.Fatalf("at %d: expected %d, got slice=%d at=%d", i, want[i], got[i], r.At(i))
		}
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	// Sliding window: push one, pop one, many times over a fixed capacity.
	for i := 0; i < 3; i++ {
		r.PushBack(i)
	}
	for i := 3; i < 100; i++ {
		r.PushBack(i)
		v, ok := r.PopFront()
		if !ok || v != i-3 {
			t.Fatalf("step %d: expected %d, got %d ok=%v", i, i-3, v, ok)
		}
		if r.Cap() != 4 {
			t.Fatalf("step %d: ring grew to %d", i, r.Cap())
		}
	}
	if r.At(0) != 97 || r.At(2) != 99 {
		t.Fatalf("unexpected window %v", r.Slice())
	}
}

func TestRing_PopBackAndTruncate(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 6; i++ {
		r.PushBack(i)
	}

	v, ok := r.PopBack()
	if !ok || v != 5 {
		t.Fatalf("expected 5, got %d ok=%v", v, ok)
	}

	r.Truncate(3)
	if r.Len() != 3 || r.At(2) != 2 {
		t.Fatalf("expected [0 1 2], got %v", r.Slice())
	}

	r.Truncate(10)
	if r.Len() != 3 {
		t.Fatalf("truncate beyond len should be a no-op, got len=%d", r.Len())
	}

	r.Set(1, 42)
	if r.At(1) != 42 {
		t.Fatalf("expected 42, got %d", r.At(1))
	}

	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("expected empty ring, got %d", r.Len())
	}
}

func TestRing_AtOutOfRangePanics(t *testing.T) {
	r := New[int](2)
	r.PushBack(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_ = r.At(1)
}

func TestRing_Reserve(t *testing.T) {
	r := New[string](2)
	r.PushBack("a")
	r.Reserve(10)
	if r.Cap() < 11 {
		t.Fatalf("expected cap >= 11, got %d", r.Cap())
	}
	if r.At(0) != "a" {
		t.Fatalf("reserve lost data: %v", r.Slice())
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
