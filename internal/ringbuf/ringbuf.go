// Package ringbuf provides a growable double-ended ring buffer.
// Storage is a power-of-two slice so index wrapping is a bitwise AND, and
// pushes or pops at either end are O(1) amortised.
//
// A Ring is not safe for concurrent use; callers serialise access.
package ringbuf

// Ring is a double-ended queue with random access by logical position.
// Position 0 is the front (oldest) element.
type Ring[T any] struct {
	buf  []T
	mask int
	head int // physical index of position 0
	n    int
}

// New creates a ring with room for at least capacity elements before the
// first growth. capacity is rounded up to the next power of two; minimum 2.
func New[T any](capacity int) *Ring[T] {
	c := nextPow2(capacity)
	if c < 2 {
		c = 2
	}
	return &Ring[T]{buf: make([]T, c), mask: c - 1}
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the current backing capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the element at logical position i. It panics when i is out of
// range, the same way a slice index does.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)&r.mask]
}

// Set replaces the element at logical position i.
func (r *Ring[T]) Set(i int, v T) {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	r.buf[(r.head+i)&r.mask] = v
}

// PushBack appends v after the last element.
func (r *Ring[T]) PushBack(v T) {
	if r.n == len(r.buf) {
		r.grow(r.n + 1)
	}
	r.buf[(r.head+r.n)&r.mask] = v
	r.n++
}

// PushFront inserts v before the first element.
func (r *Ring[T]) PushFront(v T) {
	if r.n == len(r.buf) {
		r.grow(r.n + 1)
	}
	r.head = (r.head - 1) & r.mask
	r.buf[r.head] = v
	r.n++
}

// PopFront removes and returns the first element.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) & r.mask
	r.n--
	return v, true
}

// PopBack removes and returns the last element.
func (r *Ring[T]) PopBack() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	idx := (r.head + r.n - 1) & r.mask
	v := r.buf[idx]
	r.buf[idx] = zero
	r.n--
	return v, true
}

// Truncate keeps the first n elements and drops the rest.
// n larger than Len is a no-op.
func (r *Ring[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	for r.n > n {
		r.PopBack()
	}
}

// Clear removes every element but keeps the backing storage.
func (r *Ring[T]) Clear() {
	r.Truncate(0)
	r.head = 0
}

// Reserve grows the backing storage so that Len()+extra elements fit
// without further allocation.
func (r *Ring[T]) Reserve(extra int) {
	if r.n+extra > len(r.buf) {
		r.grow(r.n + extra)
	}
}

// Slice returns the elements in logical order as a fresh slice.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.n)
	r.copyTo(out)
	return out
}

func (r *Ring[T]) copyTo(dst []T) {
	if r.n == 0 {
		return
	}
	end := r.head + r.n
	if end <= len(r.buf) {
		copy(dst, r.buf[r.head:end])
		return
	}
	k := copy(dst, r.buf[r.head:])
	copy(dst[k:], r.buf[:end-len(r.buf)])
}

func (r *Ring[T]) grow(need int) {
	c := nextPow2(need)
	if c < 2*len(r.buf) {
		c = 2 * len(r.buf)
	}
	buf := make([]T, c)
	r.copyTo(buf)
	r.buf = buf
	r.mask = c - 1
	r.head = 0
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
