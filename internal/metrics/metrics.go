// Package metrics exposes Prometheus metrics and a health endpoint for the
// replay server.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"barreplay/internal/session"
)

// Metrics holds all Prometheus metrics for the replay server. Each instance
// owns its registry so tests and multiple servers never collide.
type Metrics struct {
	Registry *prometheus.Registry

	AdvancesTotal  *prometheus.CounterVec // labels: mode, state
	AdvanceErrors  prometheus.Counter
	AdvanceDur     prometheus.Histogram
	ResetsTotal    prometheus.Counter
	ReplayOffset   prometheus.Gauge
	SessionsActive prometheus.Gauge

	IndicatorEvalDur prometheus.Histogram
	SeriesEvictions  prometheus.Counter

	// Live feed
	WSClients        prometheus.Gauge
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	FanoutQueued     *prometheus.GaugeVec   // labels: subscriber
	PublishBuffered  prometheus.Counter
	CircuitState     prometheus.Gauge // 0=closed, 1=open, 2=half-open

	CandlesLoaded *prometheus.CounterVec // labels: tf
}

var fastBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AdvancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_advances_total",
			Help: "Replay clock advances by mode and resulting candle state",
		}, []string{"mode", "state"}),
		AdvanceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_advance_errors_total",
			Help: "Advances rejected by at least one session",
		}),
		AdvanceDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_advance_duration_seconds",
			Help:    "Time to apply one advance to every session and evaluate indicators",
			Buckets: fastBuckets,
		}),
		ResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_resets_total",
			Help: "Replay resets",
		}),
		ReplayOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_offset",
			Help: "Current replay offset in base timeframe bars",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_sessions_active",
			Help: "Sessions registered with the replay",
		}),
		IndicatorEvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_indicator_eval_duration_seconds",
			Help:    "Indicator evaluation latency per series position",
			Buckets: fastBuckets,
		}),
		SeriesEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_series_evictions_total",
			Help: "Candles evicted from bounded series heads",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_fanout_drops_total",
			Help: "Series updates dropped for slow subscribers",
		}, []string{"subscriber"}),
		FanoutQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "replay_fanout_queued",
			Help: "Updates waiting in each fan-out subscriber channel",
		}, []string{"subscriber"}),
		PublishBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_publish_buffered_total",
			Help: "Updates buffered while the Redis circuit breaker was open",
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CandlesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_candles_loaded_total",
			Help: "Candles read from the historical store",
		}, []string{"tf"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AdvancesTotal,
		m.AdvanceErrors,
		m.AdvanceDur,
		m.ResetsTotal,
		m.ReplayOffset,
		m.SessionsActive,
		m.IndicatorEvalDur,
		m.SeriesEvictions,
		m.WSClients,
		m.FanoutDropsTotal,
		m.FanoutQueued,
		m.PublishBuffered,
		m.CircuitState,
		m.CandlesLoaded,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	ReplayLoaded    bool
	Symbol          string
	Timeframe       string
	RedisEnabled    bool
	RedisConnected  bool
	RedisLatencyMs  float64
	SQLiteOK        bool
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	market *session.Hours
	now    func() time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), now: time.Now}
}

// SetMarket adds the exchange's live open/closed status to /healthz.
func (h *HealthStatus) SetMarket(hours *session.Hours) {
	h.mu.Lock()
	h.market = hours
	h.mu.Unlock()
}

func (h *HealthStatus) SetReplay(symbol, tf string) {
	h.mu.Lock()
	h.ReplayLoaded = true
	h.Symbol, h.Timeframe = symbol, tf
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and health.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the given dependencies every interval until
// ctx is cancelled. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if db != nil {
			h.CheckSQLite(probeCtx, db)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles /healthz. A disabled Redis does not degrade health.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.SQLiteOK || !h.ReplayLoaded || (h.RedisEnabled && !h.RedisConnected) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && !h.ReplayLoaded {
		status = "unhealthy"
	}

	body := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		ReplayLoaded    bool    `json:"replay_loaded"`
		Symbol          string  `json:"symbol,omitempty"`
		Timeframe       string  `json:"tf,omitempty"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
		Market          string  `json:"market,omitempty"`
		MarketOpen      *bool   `json:"market_open,omitempty"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		ReplayLoaded:    h.ReplayLoaded,
		Symbol:          h.Symbol,
		Timeframe:       h.Timeframe,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if h.market != nil {
		now := h.now()
		open := h.market.IsOpen(now)
		body.Market = h.market.StatusString(now)
		body.MarketOpen = &open
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health)
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
