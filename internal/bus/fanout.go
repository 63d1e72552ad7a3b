// Package bus fans live series updates out to independent consumers.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"barreplay/internal/model"
	"barreplay/internal/series"
)

// FanOut broadcasts updates from a single input channel to N output channels.
// If an output channel is full, the update is dropped for that consumer so a
// slow consumer never blocks the replay.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.SeriesUpdate
	bufSize int

	// OnDrop is called when an update is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan model.SeriesUpdate {
	ch := make(chan model.SeriesUpdate, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers until ctx is
// cancelled or input is closed. Output channels are closed on return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.SeriesUpdate) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- u:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						slog.Warn("bus: output full, dropping update", "subscriber", i, "channel", u.Channel())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}

// Tap subscribes to s and forwards every applied mutation to out as a
// SeriesUpdate. Sends never block: when out is full the update is dropped and
// onDrop (if non-nil) is called. The returned func removes the subscription.
func Tap(symbol string, s series.CandleSeries, out chan<- model.SeriesUpdate, onDrop func()) (unsubscribe func()) {
	tf := s.Timeframe()
	return s.Subscribe(func(ev series.Event) {
		u := model.SeriesUpdate{
			Symbol:    symbol,
			Timeframe: tf,
			Kind:      ev.Kind.String(),
			Len:       ev.Len,
			Candle:    ev.Candle,
		}
		select {
		case out <- u:
		default:
			if onDrop != nil {
				onDrop()
			}
		}
	})
}
