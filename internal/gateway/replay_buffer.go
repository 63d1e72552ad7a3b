package gateway

import (
	"sync"

	"barreplay/internal/ringbuf"
)

// replayEntry holds a single broadcast envelope for gap backfill.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel so clients can
// backfill sequence gaps. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring *ringbuf.Ring[replayEntry]
	max  int
}

// NewReplayBuffer creates a buffer holding at most capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity), max: capacity}
}

// Push appends an envelope, dropping the oldest when full. data is copied.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.ring.Len() == rb.max {
		rb.ring.PopFront()
	}
	rb.ring.PushBack(replayEntry{Seq: seq, Data: cp})
}

// Range returns entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []replayEntry
	for i := 0; i < rb.ring.Len(); i++ {
		e := rb.ring.At(i)
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.ring.Len()
}
