package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"barreplay/internal/model"
)

const defaultMaxBuffer = 10000

// BufferedPublisher routes publishes through a circuit breaker. While the
// breaker is open, updates are kept in a bounded local buffer (oldest dropped
// first) and replayed in order by the next successful publish.
type BufferedPublisher struct {
	pub model.UpdatePublisher
	cb  *CircuitBreaker

	mu     sync.Mutex
	buffer []model.SeriesUpdate
	maxBuf int

	OnBuffer func()          // called when an update is buffered
	OnFlush  func(count int) // called after buffered updates were replayed
}

var _ model.UpdatePublisher = (*BufferedPublisher)(nil)

// NewBufferedPublisher wraps pub. maxBuffer <= 0 selects the default.
func NewBufferedPublisher(pub model.UpdatePublisher, cb *CircuitBreaker, maxBuffer int) *BufferedPublisher {
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxBuffer
	}
	return &BufferedPublisher{pub: pub, cb: cb, maxBuf: maxBuffer}
}

// Publish sends u, first draining anything buffered. A rejected or failed
// publish buffers u and returns nil; only the breaker decides when to retry.
func (b *BufferedPublisher) Publish(ctx context.Context, u model.SeriesUpdate) error {
	if err := b.flush(ctx); err != nil {
		b.bufferUpdate(u)
		return nil
	}
	err := b.cb.Execute(func() error { return b.pub.Publish(ctx, u) })
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("redis publish failed, buffering", "channel", u.Channel(), "error", err)
		}
		b.bufferUpdate(u)
	}
	return nil
}

func (b *BufferedPublisher) bufferUpdate(u model.SeriesUpdate) {
	b.mu.Lock()
	if len(b.buffer) >= b.maxBuf {
		b.buffer = b.buffer[1:]
	}
	b.buffer = append(b.buffer, u)
	b.mu.Unlock()
	if b.OnBuffer != nil {
		b.OnBuffer()
	}
}

// flush replays buffered updates in order and stops at the first failure,
// keeping the rest.
func (b *BufferedPublisher) flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) == 0 {
		return nil
	}

	sent := 0
	var err error
	for _, u := range b.buffer {
		if err = b.cb.Execute(func() error { return b.pub.Publish(ctx, u) }); err != nil {
			break
		}
		sent++
	}
	b.buffer = b.buffer[sent:]
	if sent > 0 {
		slog.Info("redis flushed buffered updates", "count", sent, "pending", len(b.buffer))
		if b.OnFlush != nil {
			b.OnFlush(sent)
		}
	}
	return err
}

// PendingCount returns the number of buffered updates.
func (b *BufferedPublisher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

func (b *BufferedPublisher) Close() error {
	return b.pub.Close()
}
