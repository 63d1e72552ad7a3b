// Package service wires the replay controller to its stores, the live feed
// and the HTTP surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"barreplay/config"
	"barreplay/internal/bus"
	"barreplay/internal/gateway"
	"barreplay/internal/indicator"
	"barreplay/internal/logger"
	"barreplay/internal/metrics"
	"barreplay/internal/model"
	"barreplay/internal/replay"
	redisstore "barreplay/internal/store/redis"
	"barreplay/internal/session"
	sqlitestore "barreplay/internal/store/sqlite"
)

const livenessInterval = 10 * time.Second

// Service is the top-level orchestrator for replayd.
// It owns every dependency, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config

	prom   *metrics.Metrics
	health *metrics.HealthStatus

	sqlReader *sqlitestore.Reader
	sqlWriter *sqlitestore.Writer
	publisher *redisstore.Publisher
	buffered  *redisstore.BufferedPublisher
	breaker   *redisstore.CircuitBreaker

	hub  *gateway.Hub
	ctrl *Controller
	cal  session.Calendar
}

// New opens SQLite and, when enabled, Redis. A Redis connection failure is
// not fatal: the live feed then only reaches WebSocket clients.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	var err error
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		slog.Warn("sqlite writer init failed, snapshots disabled", "error", err)
	}

	if cfg.Redis.Enabled {
		svc.publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Warn("redis unavailable, continuing without redis publishing", "error", err)
		} else {
			svc.breaker = redisstore.NewCircuitBreaker(cfg.Redis.MaxFailures, cfg.Redis.CoolDown)
			svc.breaker.OnStateChange = func(from, to redisstore.State) {
				svc.prom.CircuitState.Set(float64(to))
			}
			svc.buffered = redisstore.NewBufferedPublisher(svc.publisher, svc.breaker, cfg.Redis.MaxBuffer)
			svc.buffered.OnBuffer = svc.prom.PublishBuffered.Inc
		}
	}

	svc.hub = gateway.NewHub(nil, cfg.Server.ClientBuffer)
	svc.hub.OnClientCount = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	return svc, nil
}

// Run loads the replay and serves it until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	rc := cfg.Replay
	ctx = logger.WithReplayID(ctx, logger.NewReplayID(rc.Symbol, rc.Timeframe.Label(), time.Now()))
	slog.InfoContext(ctx, "starting replay server", logger.Attrs(ctx)...)

	if err := svc.buildController(ctx); err != nil {
		svc.close()
		return err
	}

	updates := make(chan model.SeriesUpdate, cfg.Server.ClientBuffer)
	svc.ctrl.Tap(updates, func() { svc.prom.FanoutDropsTotal.WithLabelValues("tap").Inc() })

	fan := bus.New(cfg.Server.ClientBuffer)
	fan.OnDrop = func(i int) { svc.prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(i)).Inc() }
	hubIn := fan.Subscribe()
	go svc.hub.Run(ctx, hubIn)
	if svc.buffered != nil {
		redisIn := fan.Subscribe()
		go redisstore.Run(ctx, svc.buffered, redisIn)
	}
	go fan.Run(ctx, updates)
	go svc.fanoutLoop(ctx, fan)

	srv := svc.startHTTP()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, svc.prom, svc.health)
	metricsSrv.Start()
	svc.health.SetReplay(rc.Symbol, rc.Timeframe.Label())
	if ex, ok := svc.cal.(session.ExchangeCalendar); ok {
		svc.health.SetMarket(ex.Hours)
	}
	var rdb *goredis.Client
	if svc.publisher != nil {
		rdb = svc.publisher.Client()
	}
	svc.health.StartLivenessChecker(ctx, rdb, svc.sqlReader.DB(), livenessInterval)

	go svc.snapshotLoop(ctx)

	if rc.Autoplay {
		if _, err := svc.ctrl.Play(rc.Speed); err != nil {
			slog.Warn("autoplay failed", "error", err)
		}
	}

	st := svc.ctrl.State()
	slog.InfoContext(ctx, "replay ready",
		append(logger.Attrs(ctx),
			"symbol", st.Symbol, "tf", st.TF.Label(), "mode", st.Mode,
			"remaining", st.Remaining, "timeframes", len(st.Timeframes),
			"http", cfg.Server.Addr, "metrics", cfg.MetricsAddr)...)

	<-ctx.Done()

	svc.shutdown(srv, metricsSrv)
	return nil
}

// buildController loads candles, resolves the resume position and creates
// the controller with its live hooks.
func (svc *Service) buildController(ctx context.Context) error {
	rc := svc.cfg.Replay

	candles, err := LoadCandles(ctx, svc.sqlReader, rc.Symbol, rc.Timeframe, rc.From, rc.To, svc.prom)
	if err != nil {
		svc.logAvailable(ctx)
		return err
	}
	initial := rc.InitialBars
	if rc.Resume {
		if initial, err = ResumeIndex(ctx, svc.sqlReader, rc.Symbol, rc.Timeframe, candles, initial); err != nil {
			return err
		}
	}

	mode, err := replay.ParseMode(rc.Mode)
	if err != nil {
		return err
	}
	cal, err := CalendarFor(rc.Calendar)
	if err != nil {
		return err
	}
	svc.cal = cal
	engine, err := indicator.NewEngine(svc.cfg.Indicators, cal)
	if err != nil {
		return fmt.Errorf("indicator engine: %w", err)
	}

	svc.ctrl, err = NewController(candles, rc.Timeframe, engine, Options{
		Symbol:      rc.Symbol,
		Mode:        mode,
		InitialBars: initial,
		MaxCandles:  rc.MaxCandles,
		Calendar:    cal,
		Resample:    rc.Resample,
		Interval:    rc.Interval,
		Speed:       rc.Speed,
	}, svc.prom)
	if err != nil {
		return err
	}
	svc.ctrl.Bind(ctx)
	svc.ctrl.OnSnapshot = func(snap indicator.Snapshot) {
		svc.hub.BroadcastSnapshot(snap)
		svc.publishSnapshot(ctx, snap)
	}
	svc.ctrl.OnState = svc.hub.PushState
	svc.hub.Control = svc.ctrl
	return nil
}

// logAvailable lists the stored series so a bad symbol or timeframe in the
// config is easy to spot.
func (svc *Service) logAvailable(ctx context.Context) {
	infos, err := svc.sqlReader.ListSeries(ctx)
	if err != nil {
		return
	}
	for _, si := range infos {
		slog.InfoContext(ctx, "available series",
			"symbol", si.Symbol, "tf", si.Timeframe.Label(), "count", si.Count,
			"first", si.First, "last", si.Last)
	}
}

func (svc *Service) publishSnapshot(ctx context.Context, snap indicator.Snapshot) {
	if svc.publisher == nil {
		return
	}
	err := svc.breaker.Execute(func() error { return svc.publisher.PublishSnapshot(ctx, snap) })
	if err != nil && !errors.Is(err, redisstore.ErrCircuitOpen) {
		slog.Warn("redis snapshot publish failed", "key", snap.Key(), "error", err)
	}
}

func (svc *Service) startHTTP() *http.Server {
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, svc.hub, gateway.RouteConfig{AllowedOrigins: svc.cfg.Server.AllowedOrigins})

	srv := &http.Server{
		Addr:         svc.cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  svc.cfg.Server.ReadTimeout,
		WriteTimeout: svc.cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()
	return srv
}

// fanoutLoop exports subscriber queue depths every liveness interval.
func (svc *Service) fanoutLoop(ctx context.Context, fan *bus.FanOut) {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recordFanout(svc.prom, fan)
		}
	}
}

func recordFanout(prom *metrics.Metrics, fan *bus.FanOut) {
	for i, st := range fan.ChannelStats() {
		prom.FanoutQueued.WithLabelValues(strconv.Itoa(i)).Set(float64(st.Len))
	}
}

// snapshotLoop periodically checkpoints indicator values to SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	if svc.sqlWriter == nil || svc.cfg.Replay.SnapshotInterval <= 0 {
		return
	}
	ticker := time.NewTicker(svc.cfg.Replay.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.saveSnapshots(ctx)
		}
	}
}

func (svc *Service) saveSnapshots(ctx context.Context) {
	snaps := svc.ctrl.Checkpoint()
	if len(snaps) == 0 {
		slog.Debug("checkpoint skipped mid-bar")
		return
	}
	for _, snap := range snaps {
		if err := svc.sqlWriter.SaveSnapshot(ctx, snap); err != nil {
			slog.Warn("sqlite snapshot write failed", "key", snap.Key(), "error", err)
			return
		}
	}
	slog.Debug("checkpoint saved", "snapshots", len(snaps))
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown(srv *http.Server, metricsSrv *metrics.Server) {
	slog.Info("shutdown signal received, saving final snapshot")
	svc.ctrl.Close()

	shutCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.Server.ShutdownTimeout)
	defer cancel()

	if svc.sqlWriter != nil {
		svc.saveSnapshots(shutCtx)
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := metricsSrv.Stop(shutCtx); err != nil {
		slog.Warn("metrics shutdown", "error", err)
	}
	if svc.buffered != nil && svc.buffered.PendingCount() > 0 {
		slog.Warn("dropping buffered redis updates", "count", svc.buffered.PendingCount())
	}
	svc.close()
	slog.Info("shutdown complete")
}

func (svc *Service) close() {
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.sqlReader.Close()
	if svc.publisher != nil {
		svc.publisher.Close()
	}
}
