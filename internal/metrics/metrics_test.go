package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barreplay/internal/session"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.AdvancesTotal.WithLabelValues("ohlc", "open").Inc()
	a.ResetsTotal.Inc()

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["replay_advances_total"])
	assert.True(t, names["replay_resets_total"])

	other, err := b.Registry.Gather()
	require.NoError(t, err)
	for _, f := range other {
		if f.GetName() == "replay_resets_total" {
			assert.Zero(t, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ReplayOffset.Set(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(string(body), "replay_offset 7"))
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()

	get := func() (int, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		return rec.Code, body
	}

	code, body := get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])

	h.SetReplay("NIFTY", "5m")
	h.mu.Lock()
	h.SQLiteOK = true
	h.mu.Unlock()
	code, body = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "NIFTY", body["symbol"])

	h.mu.Lock()
	h.RedisEnabled = true
	h.mu.Unlock()
	code, body = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealthStatus_Market(t *testing.T) {
	h := NewHealthStatus()
	h.SetReplay("NIFTY", "1m")
	ist := time.FixedZone("IST", 5*3600+1800)

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		return body
	}

	body := get()
	assert.NotContains(t, body, "market")

	h.SetMarket(session.NSE())
	h.now = func() time.Time { return time.Date(2026, 1, 27, 10, 0, 0, 0, ist) }
	body = get()
	assert.Equal(t, true, body["market_open"])
	assert.Contains(t, body["market"], "NSE open")

	h.now = func() time.Time { return time.Date(2026, 1, 23, 16, 0, 0, 0, ist) }
	body = get()
	assert.Equal(t, false, body["market_open"])
	assert.Contains(t, body["market"], "NSE closed, opens Tue 09:15")
}
