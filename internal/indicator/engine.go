package indicator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barreplay/internal/model"
	"barreplay/internal/series"
	"barreplay/internal/session"
)

// Config specifies a single indicator to compute.
type Config struct {
	Type   string `yaml:"type" json:"type" validate:"required"` // "EMA", "RSI", "VWAP", ...
	Period int    `yaml:"period" json:"period" validate:"gte=0"`
}

// Name returns the display name, e.g. "EMA_9" or "VWAP".
func (c Config) Name() string {
	if c.Period == 0 {
		return strings.ToUpper(c.Type)
	}
	return strings.ToUpper(c.Type) + "_" + strconv.Itoa(c.Period)
}

// TFConfig groups indicator configs for a specific timeframe.
type TFConfig struct {
	TF         model.Timeframe `yaml:"tf" json:"tf"`
	Indicators []Config        `yaml:"indicators" json:"indicators" validate:"dive"`
}

// periodic lists types that need a positive period.
var periodic = map[string]bool{
	"SMA": true, "EMA": true, "MMA": true, "SMMA": true,
	"RSI": true, "ATR": true, "MFI": true, "SUM": true,
}

var periodless = map[string]bool{
	"OPEN": true, "HIGH": true, "LOW": true, "CLOSE": true, "VOLUME": true,
	"TP": true, "TR": true, "MF": true, "VWAP": true,
}

// New builds the indicator described by cfg over s. start is the session
// strategy used by session-scoped indicators (VWAP).
func New(cfg Config, s series.CandleSeries, start session.Start) (Indicator, error) {
	t := strings.ToUpper(cfg.Type)
	if periodic[t] && cfg.Period <= 0 {
		return nil, fmt.Errorf("indicator %s: period must be positive, got %d", t, cfg.Period)
	}
	switch t {
	case "OPEN":
		return Open(s), nil
	case "HIGH":
		return High(s), nil
	case "LOW":
		return Low(s), nil
	case "CLOSE":
		return Close(s), nil
	case "VOLUME":
		return Volume(s), nil
	case "TP":
		return TypicalPrice(s), nil
	case "TR":
		return TrueRange(s), nil
	case "MF":
		return MoneyFlow(s), nil
	case "SUM":
		return Sum(Close(s), cfg.Period), nil
	case "SMA":
		return SMA(Close(s), cfg.Period), nil
	case "EMA":
		return EMAPeriod(Close(s), cfg.Period), nil
	case "MMA", "SMMA":
		return MMA(Close(s), cfg.Period), nil
	case "RSI":
		return RSI(Close(s), cfg.Period), nil
	case "ATR":
		return ATR(s, cfg.Period), nil
	case "MFI":
		return MFI(s, cfg.Period), nil
	case "VWAP":
		if start == nil {
			return nil, fmt.Errorf("indicator VWAP: no session start configured")
		}
		return VWAP(s, start), nil
	default:
		return nil, fmt.Errorf("unknown indicator type %q", cfg.Type)
	}
}

// Result is one evaluated indicator value.
type Result struct {
	Name  string          `json:"name"`
	TF    model.Timeframe `json:"tf"`
	Value decimal.Decimal `json:"value"`
	TS    time.Time       `json:"ts"`
	Index int             `json:"index"`
	Ready bool            `json:"ready"`
}

// Engine evaluates the configured indicators for each timeframe.
// Values are memoised in the series caches, so Engine itself is stateless
// apart from its configuration. Designed for single-goroutine usage.
type Engine struct {
	configs map[model.Timeframe][]Config
	order   []model.Timeframe
	cal     session.Calendar
}

// NewEngine creates an indicator engine with the given per-TF configs.
// cal supplies the VWAP session start (its daily strategy).
func NewEngine(configs []TFConfig, cal session.Calendar) (*Engine, error) {
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	if cal == nil {
		cal = session.UTCCalendar{}
	}
	e := &Engine{cal: cal}
	e.install(configs)
	return e, nil
}

func (e *Engine) install(configs []TFConfig) {
	e.configs = make(map[model.Timeframe][]Config, len(configs))
	e.order = e.order[:0]
	for _, c := range configs {
		e.configs[c.TF] = append([]Config(nil), c.Indicators...)
		e.order = append(e.order, c.TF)
	}
}

// Timeframes returns the configured timeframes in config order.
func (e *Engine) Timeframes() []model.Timeframe {
	return append([]model.Timeframe(nil), e.order...)
}

// Configs returns the indicator configs for tf.
func (e *Engine) Configs(tf model.Timeframe) []Config {
	return append([]Config(nil), e.configs[tf]...)
}

// Evaluate computes every indicator configured for s's timeframe at
// position i. It returns nil when the timeframe is not configured or i is
// out of range.
func (e *Engine) Evaluate(s series.CandleSeries, i int) ([]Result, error) {
	cfgs, ok := e.configs[s.Timeframe()]
	if !ok || i < 0 || i >= s.Len() {
		return nil, nil
	}
	start := e.cal.For(model.TF1d)
	ts := s.At(i).OpenTime
	results := make([]Result, 0, len(cfgs))
	for _, cfg := range cfgs {
		ind, err := New(cfg, s, start)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			Name:  cfg.Name(),
			TF:    s.Timeframe(),
			Value: ind.Value(i),
			TS:    ts,
			Index: i,
			Ready: i+1 >= cfg.Period,
		})
	}
	return results, nil
}

// EvaluateLast is Evaluate at the newest position.
func (e *Engine) EvaluateLast(s series.CandleSeries) ([]Result, error) {
	return e.Evaluate(s, s.Len()-1)
}
