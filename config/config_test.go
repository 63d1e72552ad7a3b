package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barreplay/internal/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLAndDefaults(t *testing.T) {
	path := writeFile(t, `
replay:
  symbol: NIFTY
  tf: 5m
  mode: ohlc
  from: 2024-01-02
  resample: [15m, 1h]
indicators:
  - tf: 5m
    indicators:
      - {type: EMA, period: 9}
      - {type: VWAP}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "NIFTY", cfg.Replay.Symbol)
	assert.Equal(t, model.TF5m, cfg.Replay.Timeframe)
	assert.Equal(t, "ohlc", cfg.Replay.Mode)
	assert.Equal(t, []model.Timeframe{model.TF15m, model.TF1h}, cfg.Replay.Resample)
	assert.True(t, cfg.Replay.From.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.Len(t, cfg.Indicators, 1)
	assert.Equal(t, "EMA_9", cfg.Indicators[0].Indicators[0].Name())

	// defaults
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "data/candles.db", cfg.SQLitePath)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 200, cfg.Replay.InitialBars)
	assert.Equal(t, 1.0, cfg.Replay.Speed)
	assert.Equal(t, "utc", cfg.Replay.Calendar)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REPLAY_SYMBOL", "BANKNIFTY")
	t.Setenv("REPLAY_TF", "1m")
	t.Setenv("REPLAY_RESAMPLE", "5m, 15m")
	t.Setenv("REPLAY_FROM", "2024-03-01T09:15:00+05:30")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY", cfg.Replay.Symbol)
	assert.Equal(t, model.TF1m, cfg.Replay.Timeframe)
	assert.Equal(t, []model.Timeframe{model.TF5m, model.TF15m}, cfg.Replay.Resample)
	assert.Equal(t, 3, cfg.Replay.From.UTC().Hour())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("REPLAY_SYMBOL", "NIFTY")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, model.TF1m, cfg.Replay.Timeframe)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing symbol", "replay: {tf: 5m}", "replay.symbol is required"},
		{"bad mode", "replay: {symbol: X, mode: tick}", "replay.mode must be one of: fullbar, ohlc"},
		{"bad level", "log_level: loud\nreplay: {symbol: X}", "log_level must be one of"},
		{"resample below base", "replay: {symbol: X, tf: 15m, resample: [5m]}", "not above the base timeframe"},
		{"bad indicator", "replay: {symbol: X}\nindicators: [{tf: 1m, indicators: [{type: EMA}]}]", "invalid period"},
		{"unknown tf", "replay: {symbol: X, tf: 7m}", "parse config"},
		{"to before from", "replay: {symbol: X, from: 2024-02-01, to: 2024-01-01}", "is before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTimeframes(t *testing.T) {
	tfs, err := ParseTimeframes("5m,,1h")
	require.NoError(t, err)
	assert.Equal(t, []model.Timeframe{model.TF5m, model.TF1h}, tfs)

	_, err = ParseTimeframes("5m,bogus")
	assert.ErrorIs(t, err, model.ErrUnknownTimeframe)
}

func TestLoadWith_OverrideBeforeValidation(t *testing.T) {
	cfg, err := LoadWith("", func(c *Config) {
		c.Replay.Symbol = "BANKNIFTY"
		c.Replay.Resample = []model.Timeframe{model.TF15m}
	})
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY", cfg.Replay.Symbol)
	assert.Equal(t, 30*time.Second, cfg.Replay.SnapshotInterval)

	_, err = LoadWith("", func(c *Config) {
		c.Replay.Symbol = "NIFTY"
		c.Replay.Resample = []model.Timeframe{model.TF1m}
	})
	assert.ErrorContains(t, err, "not above the base timeframe")
}

func TestLoad_ExplicitZeroInitialBars(t *testing.T) {
	path := writeFile(t, `
replay:
  symbol: NIFTY
  initial_bars: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Replay.InitialBars)

	t.Setenv("REPLAY_INITIAL_BARS", "0")
	cfg, err = Load(writeFile(t, "replay:\n  symbol: NIFTY\n  initial_bars: 50\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Replay.InitialBars)

	cfg, err = LoadWith("", func(c *Config) {
		c.Replay.Symbol = "NIFTY"
		c.Replay.InitialBars = 0
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Replay.InitialBars)
}
