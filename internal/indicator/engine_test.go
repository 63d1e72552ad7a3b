package indicator

import (
	"strings"
	"testing"

	"barreplay/internal/model"
	"barreplay/internal/session"
)

func defaultConfigs() []TFConfig {
	return []TFConfig{
		{
			TF: model.TF1m,
			Indicators: []Config{
				{Type: "EMA", Period: 9},
				{Type: "RSI", Period: 14},
				{Type: "VWAP"},
			},
		},
		{
			TF:         model.TF5m,
			Indicators: []Config{{Type: "SMA", Period: 20}},
		},
	}
}

func TestConfig_Name(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Type: "EMA", Period: 9}, "EMA_9"},
		{Config{Type: "rsi", Period: 14}, "RSI_14"},
		{Config{Type: "VWAP"}, "VWAP"},
	}
	for _, tc := range cases {
		if got := tc.cfg.Name(); got != tc.want {
			t.Errorf("Name() = %s, want %s", got, tc.want)
		}
	}
}

func TestNew_AllTypes(t *testing.T) {
	s := fixture(t, 30)
	start := session.Aligned{TF: model.TF1d}
	for _, typ := range []string{"OPEN", "HIGH", "LOW", "CLOSE", "VOLUME", "TP", "TR", "MF", "VWAP"} {
		ind, err := New(Config{Type: typ}, s, start)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		_ = ind.Value(29)
	}
	for _, typ := range []string{"SUM", "SMA", "EMA", "MMA", "SMMA", "RSI", "ATR", "MFI"} {
		ind, err := New(Config{Type: typ, Period: 5}, s, start)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if ind.Series() != s {
			t.Fatalf("%s: wrong series", typ)
		}
		_ = ind.Value(29)
	}
}

func TestNew_Errors(t *testing.T) {
	s := fixture(t, 3)
	if _, err := New(Config{Type: "EMA"}, s, nil); err == nil {
		t.Error("expected error for EMA without period")
	}
	if _, err := New(Config{Type: "VWAP"}, s, nil); err == nil {
		t.Error("expected error for VWAP without session start")
	}
	if _, err := New(Config{Type: "MACD", Period: 3}, s, nil); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestValidateConfigs(t *testing.T) {
	if err := ValidateConfigs(defaultConfigs()); err != nil {
		t.Fatalf("valid configs rejected: %v", err)
	}

	cases := []struct {
		name    string
		configs []TFConfig
		errPart string
	}{
		{"bad tf", []TFConfig{{TF: 7}}, "invalid TF"},
		{"dup tf", []TFConfig{{TF: model.TF1m}, {TF: model.TF1m}}, "duplicate TF"},
		{"unknown", []TFConfig{{TF: model.TF1m, Indicators: []Config{{Type: "FOO", Period: 1}}}}, "unknown indicator"},
		{"zero period", []TFConfig{{TF: model.TF1m, Indicators: []Config{{Type: "EMA"}}}}, "invalid period"},
		{"period on vwap", []TFConfig{{TF: model.TF1m, Indicators: []Config{{Type: "VWAP", Period: 3}}}}, "takes no period"},
		{"dup indicator", []TFConfig{{TF: model.TF1m, Indicators: []Config{{Type: "EMA", Period: 3}, {Type: "ema", Period: 3}}}}, "duplicate indicator"},
	}
	for _, tc := range cases {
		err := ValidateConfigs(tc.configs)
		if err == nil || !strings.Contains(err.Error(), tc.errPart) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.errPart, err)
		}
	}
}

func TestEngine_Evaluate(t *testing.T) {
	e, err := NewEngine(defaultConfigs(), session.UTCCalendar{})
	if err != nil {
		t.Fatal(err)
	}
	s := fixture(t, 40)

	results, err := e.EvaluateLast(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Name != "EMA_9" || !results[0].Ready || results[0].Index != 39 {
		t.Errorf("unexpected first result %+v", results[0])
	}
	assertDec(t, "EMA_9 via engine", results[0].Value, EMAPeriod(Close(s), 9).Value(39))

	early, _ := e.Evaluate(s, 5)
	if early[1].Ready {
		t.Error("RSI_14 should not be ready at index 5")
	}

	// unconfigured timeframe
	other := closes(t, "1")
	results, err = e.Evaluate(other, 0)
	if err != nil || len(results) != 3 {
		t.Fatalf("1m series should be configured, got %d results err=%v", len(results), err)
	}
	if got, _ := e.Evaluate(s, 99); got != nil {
		t.Error("out of range index should yield nil")
	}
}

func TestEngine_Reload(t *testing.T) {
	e, err := NewEngine(defaultConfigs(), nil)
	if err != nil {
		t.Fatal(err)
	}

	next := defaultConfigs()
	next[0].Indicators = append(next[0].Indicators, Config{Type: "ATR", Period: 14})
	preserved, created, err := e.Reload(next)
	if err != nil {
		t.Fatal(err)
	}
	if preserved != 4 || created != 1 {
		t.Errorf("expected preserved=4 created=1, got %d/%d", preserved, created)
	}
	if len(e.Configs(model.TF1m)) != 4 {
		t.Errorf("expected 4 configs on 1m, got %d", len(e.Configs(model.TF1m)))
	}

	bad := []TFConfig{{TF: model.TF1m, Indicators: []Config{{Type: "NOPE"}}}}
	if _, _, err := e.Reload(bad); err == nil {
		t.Error("expected reload to reject invalid configs")
	}
	if len(e.Timeframes()) != 2 {
		t.Error("failed reload must keep previous configs")
	}
}
