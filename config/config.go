// Package config loads replay configuration from an optional YAML file,
// environment overrides and struct-tag defaults, then validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Service     string `yaml:"service" default:"replayd"`
	LogLevel    string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	SQLitePath  string `yaml:"sqlite_path" default:"data/candles.db" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr" default:":9090"`

	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Replay ReplayConfig `yaml:"replay"`

	Indicators []indicator.TFConfig `yaml:"indicators" validate:"dive"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ClientBuffer    int           `yaml:"client_buffer" default:"256" validate:"gt=0"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"gte=0"`
	MaxFailures int           `yaml:"max_failures" default:"5" validate:"gt=0"`
	CoolDown    time.Duration `yaml:"cool_down" default:"10s"`
	MaxBuffer   int           `yaml:"max_buffer" default:"10000" validate:"gt=0"`
}

// ReplayConfig describes the series to replay and how to play it.
type ReplayConfig struct {
	Symbol      string            `yaml:"symbol" validate:"required"`
	Timeframe   model.Timeframe   `yaml:"tf" default:"60" validate:"timeframe"`
	Mode        string            `yaml:"mode" default:"fullbar" validate:"oneof=fullbar ohlc"`
	From        time.Time         `yaml:"from"`
	To          time.Time         `yaml:"to"`
	InitialBars int               `yaml:"initial_bars" default:"200" validate:"gte=0"`
	MaxCandles  int               `yaml:"max_candles" validate:"gte=0"`
	Calendar    string            `yaml:"calendar" default:"utc" validate:"oneof=utc nse"`
	Resample    []model.Timeframe `yaml:"resample" validate:"dive,timeframe"`
	Interval    time.Duration     `yaml:"interval" default:"1s"`
	Speed       float64           `yaml:"speed" default:"1" validate:"gt=0"`
	Autoplay    bool              `yaml:"autoplay"`

	// Resume starts after the newest indicator snapshot saved for the series.
	Resume           bool          `yaml:"resume"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" default:"30s"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("timeframe", func(fl validator.FieldLevel) bool {
		return model.Timeframe(fl.Field().Int()).Valid()
	})
	return v
}

// Load starts from the struct-tag defaults, then layers the YAML file at path
// (skipped when path is empty or the file does not exist) and environment
// overrides on top, and validates. Explicit zero values survive.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with a final override step, run after the environment and
// before validation. Command-line flags use it.
func LoadWith(path string, override func(*Config)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"LOG_LEVEL":       &c.LogLevel,
		"SQLITE_PATH":     &c.SQLitePath,
		"METRICS_ADDR":    &c.MetricsAddr,
		"HTTP_ADDR":       &c.Server.Addr,
		"REDIS_ADDR":      &c.Redis.Addr,
		"REDIS_PASSWORD":  &c.Redis.Password,
		"REPLAY_SYMBOL":   &c.Replay.Symbol,
		"REPLAY_MODE":     &c.Replay.Mode,
		"REPLAY_CALENDAR": &c.Replay.Calendar,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = b
	}
	if v := os.Getenv("REPLAY_TF"); v != "" {
		tf, err := model.ParseTimeframe(v)
		if err != nil {
			return fmt.Errorf("REPLAY_TF: %w", err)
		}
		c.Replay.Timeframe = tf
	}
	if v := os.Getenv("REPLAY_FROM"); v != "" {
		t, err := ParseTime(v)
		if err != nil {
			return fmt.Errorf("REPLAY_FROM: %w", err)
		}
		c.Replay.From = t
	}
	if v := os.Getenv("REPLAY_INITIAL_BARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REPLAY_INITIAL_BARS: %w", err)
		}
		c.Replay.InitialBars = n
	}
	if v := os.Getenv("REPLAY_RESAMPLE"); v != "" {
		tfs, err := ParseTimeframes(v)
		if err != nil {
			return fmt.Errorf("REPLAY_RESAMPLE: %w", err)
		}
		c.Replay.Resample = tfs
	}
	return nil
}

// ParseTime accepts RFC3339 or a bare 2006-01-02 date (UTC midnight).
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// ParseTimeframes parses a comma-separated list like "5m,15m,1h".
func ParseTimeframes(s string) ([]model.Timeframe, error) {
	var out []model.Timeframe
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

// Validate checks struct tags, resample timeframes and indicator configs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldMessage(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	for _, tf := range c.Replay.Resample {
		if tf <= c.Replay.Timeframe {
			return fmt.Errorf("replay.resample: %s is not above the base timeframe %s", tf, c.Replay.Timeframe)
		}
	}
	if !c.Replay.To.IsZero() && c.Replay.To.Before(c.Replay.From) {
		return fmt.Errorf("replay.to %s is before replay.from %s", c.Replay.To, c.Replay.From)
	}
	return indicator.ValidateConfigs(c.Indicators)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "timeframe":
		return fmt.Sprintf("%s: unsupported timeframe %v", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
