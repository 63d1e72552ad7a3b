package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"barreplay/internal/bus"
	"barreplay/internal/export"
	"barreplay/internal/gateway"
	"barreplay/internal/indicator"
	"barreplay/internal/metrics"
	"barreplay/internal/model"
	"barreplay/internal/replay"
	"barreplay/internal/series"
	"barreplay/internal/session"
)

// Options configure a Controller.
type Options struct {
	Symbol      string
	Mode        replay.Mode
	InitialBars int
	MaxCandles  int
	Calendar    session.Calendar
	Resample    []model.Timeframe
	Interval    time.Duration
	Speed       float64
}

// Controller owns one replay: the input series, the BarReplay clock, its
// session-aware session and the indicator engine. Every method takes the
// same lock, so HTTP handlers, WebSocket commands and the Player serialise.
type Controller struct {
	opts   Options
	input  *series.Mutable
	clock  *replay.BarReplay
	sess   *replay.SessionAware
	engine *indicator.Engine
	prom   *metrics.Metrics

	// OnSnapshot receives indicator values after every clock change, outside
	// the lock.
	OnSnapshot func(indicator.Snapshot)
	// OnState receives the state when playback stops on its own.
	OnState func(gateway.ReplayState)

	mu       sync.Mutex
	ctx      context.Context
	player   *replay.Player
	stopPlay context.CancelFunc
	taps     []func()
	tapOut   chan<- model.SeriesUpdate
	onDrop   func()
}

var _ gateway.Controller = (*Controller)(nil)

// NewController builds a replay over candles (oldest first) in tf. prom may
// be nil.
func NewController(candles []model.Candle, tf model.Timeframe, engine *indicator.Engine, opts Options, prom *metrics.Metrics) (*Controller, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.InitialBars > len(candles) {
		slog.Warn("initial bars exceed loaded candles, clamping",
			"initial_bars", opts.InitialBars, "candles", len(candles))
		opts.InitialBars = len(candles)
	}

	input, err := series.NewMutable(tf, series.Unbounded, candles)
	if err != nil {
		return nil, fmt.Errorf("build input series: %w", err)
	}
	clock := replay.New(tf, opts.Mode)
	sess, err := clock.NewSession(replay.SessionAwareFactory(input, tf, opts.InitialBars, opts.MaxCandles, opts.Calendar))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c := &Controller{
		opts:   opts,
		input:  input,
		clock:  clock,
		sess:   sess.(*replay.SessionAware),
		engine: engine,
		prom:   prom,
		ctx:    context.Background(),
	}
	for _, rtf := range opts.Resample {
		if _, err := c.sess.Resampled(rtf); err != nil {
			return nil, err
		}
	}

	if prom != nil {
		prom.SessionsActive.Set(float64(len(clock.Sessions())))
		clock.OnAdvance = func(m replay.Mode, st replay.CandleState, offset int) {
			prom.AdvancesTotal.WithLabelValues(m.String(), st.String()).Inc()
			prom.ReplayOffset.Set(float64(offset))
		}
		c.sess.OnEvict(prom.SeriesEvictions.Inc)
	}
	return c, nil
}

// Bind sets the context the Player runs under. Cancelling it stops playback.
func (c *Controller) Bind(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// Tap forwards every mutation of the replay series and of each resampled
// series to out. Series resampled later are tapped when first requested.
func (c *Controller) Tap(out chan<- model.SeriesUpdate, onDrop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tapOut, c.onDrop = out, onDrop
	for _, s := range c.seriesLocked() {
		c.taps = append(c.taps, bus.Tap(c.opts.Symbol, s, out, onDrop))
	}
}

// Untap removes every tap.
func (c *Controller) Untap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, un := range c.taps {
		un()
	}
	c.taps, c.tapOut = nil, nil
}

// seriesLocked returns the replay series followed by the resampled ones.
func (c *Controller) seriesLocked() []series.CandleSeries {
	out := []series.CandleSeries{c.sess.Series()}
	for _, tf := range c.sess.ResampledTimeframes() {
		rs, err := c.sess.Resampled(tf)
		if err != nil {
			continue
		}
		out = append(out, rs)
	}
	return out
}

func (c *Controller) lookupLocked(tf model.Timeframe) (series.CandleSeries, error) {
	if tf == c.clock.Timeframe() {
		return c.sess.Series(), nil
	}
	known := len(c.sess.ResampledTimeframes())
	rs, err := c.sess.Resampled(tf)
	if err != nil {
		return nil, err
	}
	if c.tapOut != nil && len(c.sess.ResampledTimeframes()) > known {
		c.taps = append(c.taps, bus.Tap(c.opts.Symbol, rs, c.tapOut, c.onDrop))
	}
	return rs, nil
}

// Step advances the clock once. It is the Player's step function.
func (c *Controller) Step() error {
	c.mu.Lock()
	snaps, err := c.advanceLocked()
	c.mu.Unlock()
	c.emit(snaps)
	return err
}

func (c *Controller) advanceLocked() ([]indicator.Snapshot, error) {
	start := time.Now()
	err := c.clock.Advance()
	if c.prom != nil {
		c.prom.AdvanceDur.Observe(time.Since(start).Seconds())
		if err != nil {
			c.prom.AdvanceErrors.Inc()
		}
	}
	if err != nil {
		return nil, err
	}
	return c.snapshotsLocked(), nil
}

// snapshotsLocked evaluates the indicators of every series at its newest
// position.
func (c *Controller) snapshotsLocked() []indicator.Snapshot {
	all := c.seriesLocked()
	out := make([]indicator.Snapshot, 0, len(all))
	for _, s := range all {
		snap, err := c.evaluateLocked(s)
		if err != nil {
			slog.Warn("indicator evaluation failed", "tf", s.Timeframe().Label(), "error", err)
			continue
		}
		if len(snap.Values) > 0 {
			out = append(out, snap)
		}
	}
	return out
}

func (c *Controller) evaluateLocked(s series.CandleSeries) (indicator.Snapshot, error) {
	start := time.Now()
	results, err := c.engine.EvaluateLast(s)
	if c.prom != nil {
		c.prom.IndicatorEvalDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return indicator.Snapshot{}, err
	}
	snap := indicator.NewSnapshot(c.opts.Symbol, results)
	snap.TF = s.Timeframe()
	if last, ok := s.Last(); ok {
		snap.TS, snap.Index = last.OpenTime, s.Len()-1
	}
	return snap, nil
}

func (c *Controller) emit(snaps []indicator.Snapshot) {
	if c.OnSnapshot == nil {
		return
	}
	for _, s := range snaps {
		c.OnSnapshot(s)
	}
}

// Checkpoint evaluates the indicators of every series at its newest position
// for persistence. It returns nil while a candle is partially revealed: a
// saved snapshot always marks a closed bar, so resuming after it never skips
// the rest of a partial one.
func (c *Controller) Checkpoint() []indicator.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clock.State() != replay.Close {
		return nil
	}
	return c.snapshotsLocked()
}

func (c *Controller) State() gateway.ReplayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() gateway.ReplayState {
	st := gateway.ReplayState{
		Symbol:     c.opts.Symbol,
		TF:         c.clock.Timeframe(),
		Mode:       c.clock.Mode().String(),
		State:      c.clock.State().String(),
		Offset:     c.clock.Offset(),
		Speed:      c.opts.Speed,
		Timeframes: append([]model.Timeframe{c.clock.Timeframe()}, c.sess.ResampledTimeframes()...),
	}
	if last, ok := c.sess.Series().Last(); ok {
		st.Marker = last.OpenTime
	}
	done := c.sess.Revealed()
	if c.sess.Partial() {
		done--
	}
	st.Remaining = c.input.Len() - c.sess.InitialIndex() - done
	if c.player != nil {
		st.Playing = !c.player.Paused()
		st.Speed = c.player.Speed()
	}
	return st
}

// Advance moves the clock n times, stopping at the first error. The state
// reflects the advances that succeeded.
func (c *Controller) Advance(ctx context.Context, n int) (gateway.ReplayState, error) {
	c.mu.Lock()
	var (
		snaps []indicator.Snapshot
		err   error
	)
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		var s []indicator.Snapshot
		if s, err = c.advanceLocked(); err != nil {
			err = fmt.Errorf("advance %d of %d: %w", i+1, n, err)
			break
		}
		snaps = s
	}
	st := c.stateLocked()
	c.mu.Unlock()

	c.emit(snaps)
	return st, err
}

// Reset rewinds to the initial index and stops playback.
func (c *Controller) Reset(ctx context.Context) (gateway.ReplayState, error) {
	c.mu.Lock()
	c.stopLocked()
	err := c.clock.Reset()
	var snaps []indicator.Snapshot
	if err == nil {
		snaps = c.snapshotsLocked()
		if c.prom != nil {
			c.prom.ResetsTotal.Inc()
			c.prom.ReplayOffset.Set(0)
		}
		slog.InfoContext(ctx, "replay reset", "symbol", c.opts.Symbol)
	}
	st := c.stateLocked()
	c.mu.Unlock()

	c.emit(snaps)
	if err != nil {
		return st, fmt.Errorf("reset: %w", err)
	}
	return st, nil
}

func (c *Controller) SetMode(mode string) (gateway.ReplayState, error) {
	m, err := replay.ParseMode(mode)
	if err != nil {
		return c.State(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock.SetMode(m)
	return c.stateLocked(), nil
}

// Play starts or resumes automatic advancing. speed <= 0 keeps the current
// speed.
func (c *Controller) Play(speed float64) (gateway.ReplayState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if speed > 0 {
		c.opts.Speed = speed
	}
	if c.player != nil {
		c.player.SetSpeed(c.opts.Speed)
		c.player.Resume()
		return c.stateLocked(), nil
	}

	var p *replay.Player
	p = replay.NewPlayer(func() error { return c.playStep(p) }, c.opts.Interval)
	p.SetSpeed(c.opts.Speed)
	ctx, cancel := context.WithCancel(c.ctx)
	c.player, c.stopPlay = p, cancel
	go c.play(ctx, p)
	return c.stateLocked(), nil
}

// playStep advances once unless p was stopped while waiting for the lock.
func (c *Controller) playStep(p *replay.Player) error {
	c.mu.Lock()
	if c.player != p {
		c.mu.Unlock()
		return context.Canceled
	}
	snaps, err := c.advanceLocked()
	c.mu.Unlock()
	c.emit(snaps)
	return err
}

func (c *Controller) play(ctx context.Context, p *replay.Player) {
	err := p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("replay playback stopped", "error", err)
	}

	c.mu.Lock()
	if c.player != p {
		c.mu.Unlock()
		return
	}
	c.player = nil
	c.stopPlay()
	st := c.stateLocked()
	c.mu.Unlock()

	if c.OnState != nil {
		c.OnState(st)
	}
}

func (c *Controller) Pause() gateway.ReplayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		c.player.Pause()
	}
	return c.stateLocked()
}

// stopLocked cancels playback without notifying OnState.
func (c *Controller) stopLocked() {
	if c.player == nil {
		return
	}
	c.stopPlay()
	c.player = nil
}

// Candles returns up to limit newest candles of the series in tf.
func (c *Controller) Candles(tf model.Timeframe, limit int) ([]model.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookupLocked(tf)
	if err != nil {
		return nil, err
	}
	n := s.Len()
	from := max(n-limit, 0)
	out := make([]model.Candle, 0, n-from)
	for i := from; i < n; i++ {
		out = append(out, s.At(i))
	}
	return out, nil
}

func (c *Controller) Indicators(tf model.Timeframe) (indicator.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookupLocked(tf)
	if err != nil {
		return indicator.Snapshot{}, err
	}
	return c.evaluateLocked(s)
}

func (c *Controller) IndicatorConfigs() []indicator.TFConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	tfs := c.engine.Timeframes()
	out := make([]indicator.TFConfig, len(tfs))
	for i, tf := range tfs {
		out[i] = indicator.TFConfig{TF: tf, Indicators: c.engine.Configs(tf)}
	}
	return out
}

func (c *Controller) ReloadIndicators(configs []indicator.TFConfig) (int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Reload(configs)
}

// Rows converts the series in tf into export rows carrying indicator values.
func (c *Controller) Rows(tf model.Timeframe) ([]export.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookupLocked(tf)
	if err != nil {
		return nil, err
	}
	return export.Rows(s, c.engine)
}

// Close stops playback and removes taps.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.Untap()
}
