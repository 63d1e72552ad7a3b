package replay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Player advances a replay on a timer at a configurable speed multiplier.
// step is called from the Run goroutine; it must serialise with any other
// user of the replay.
type Player struct {
	step     func() error
	interval time.Duration

	mu     sync.Mutex
	speed  float64
	paused bool
	wake   chan struct{}
	steps  int
}

// maxGap caps the wait between steps at slow speeds.
const maxGap = 5 * time.Second

// NewPlayer creates a player calling step every interval at 1x speed.
func NewPlayer(step func() error, interval time.Duration) *Player {
	if interval <= 0 {
		interval = time.Second
	}
	return &Player{step: step, interval: interval, speed: 1, wake: make(chan struct{}, 1)}
}

// SetSpeed sets the playback multiplier: 2 halves the gap, 0.5 doubles it.
// Values <= 0 are ignored.
func (p *Player) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
	p.poke()
}

func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Player) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.poke()
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Steps returns the number of successful steps taken.
func (p *Player) Steps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.steps
}

func (p *Player) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) gap() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := time.Duration(float64(p.interval) / p.speed)
	if g > maxGap {
		g = maxGap
	}
	return g, p.paused
}

// Run steps until ctx is cancelled or the input is exhausted. Exhaustion
// ends playback cleanly; any other step error is returned.
func (p *Player) Run(ctx context.Context) error {
	slog.Info("replay player started", "interval", p.interval, "speed", p.Speed())
	for {
		g, paused := p.gap()
		if paused {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
				continue
			}
		}

		timer := time.NewTimer(g)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("replay player cancelled", "steps", p.Steps())
			return ctx.Err()
		case <-p.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if p.Paused() {
			continue
		}
		if err := p.step(); err != nil {
			if errors.Is(err, ErrInputExhausted) {
				slog.Info("replay player completed", "steps", p.Steps())
				return nil
			}
			return err
		}
		p.mu.Lock()
		p.steps++
		p.mu.Unlock()
	}
}
