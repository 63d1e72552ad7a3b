package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func c(ts int, o, h, l, cl, v string) Candle {
	d := decimal.RequireFromString
	return Candle{
		OpenTime: time.Unix(int64(ts), 0).UTC(),
		Open:     d(o), High: d(h), Low: d(l), Close: d(cl), Volume: d(v),
	}
}

func TestCandle_MergeAssociative(t *testing.T) {
	a := c(0, "10", "12", "9", "11", "100")
	b := c(60, "11", "15", "10.5", "14", "50")
	x := c(120, "14", "14.5", "8", "9", "25.5")

	onePass := Reduce([]Candle{a, b, x})
	incremental := Reduce([]Candle{a, b}).Merge(x)
	rightFirst := a.Merge(b.Merge(x))

	if !onePass.Equal(incremental) || !onePass.Equal(rightFirst) {
		t.Fatalf("merge not associative: %+v vs %+v vs %+v", onePass, incremental, rightFirst)
	}
	want := c(0, "10", "15", "8", "9", "175.5")
	if !onePass.Equal(want) {
		t.Fatalf("expected %+v, got %+v", want, onePass)
	}
}

func TestCandle_EqualIgnoresScale(t *testing.T) {
	a := c(0, "1.0", "2", "1", "1.50", "3")
	b := c(0, "1", "2.00", "1.000", "1.5", "3.0")
	if !a.Equal(b) {
		t.Fatal("expected equal candles")
	}
	b.Volume = decimal.RequireFromString("3.01")
	if a.Equal(b) {
		t.Fatal("expected different candles")
	}
}

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want Timeframe
		ok   bool
	}{
		{"1m", TF1m, true},
		{"5M", TF5m, true},
		{" 1h ", TF1h, true},
		{"1w", TF1w, true},
		{"300", TF5m, true},
		{"7m", 0, false},
		{"61", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTimeframe(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseTimeframe(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrUnknownTimeframe) {
			t.Errorf("ParseTimeframe(%q): expected ErrUnknownTimeframe, got %v", tc.in, err)
		}
	}
	if TF4h.Duration() != 4*time.Hour {
		t.Errorf("expected 4h, got %s", TF4h.Duration())
	}
}

func TestDecimalFromFloat_RejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := DecimalFromFloat("close", f)
		if !errors.Is(err, ErrDomainArithmetic) {
			t.Errorf("expected ErrDomainArithmetic for %v, got %v", f, err)
		}
	}
	d, err := DecimalFromFloat("close", 101.25)
	if err != nil || !d.Equal(decimal.RequireFromString("101.25")) {
		t.Errorf("expected 101.25, got %s err=%v", d, err)
	}
}

func TestCandleFromStrings(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	got, err := CandleFromStrings(ts, "1", "2", "0.5", "1.5", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.High.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected high=2, got %s", got.High)
	}

	_, err = CandleFromStrings(ts, "1", "x", "0.5", "1.5", "10")
	var dae *DomainArithmeticError
	if !errors.As(err, &dae) || dae.Field != "high" {
		t.Fatalf("expected DomainArithmeticError on high, got %v", err)
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = &TimeframeMismatchError{Want: TF1m, Got: TF5m}
	if !errors.Is(err, ErrTimeframeMismatch) {
		t.Fatal("TimeframeMismatchError should match sentinel")
	}
	err = &OutOfOrderError{Op: "add"}
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatal("OutOfOrderError should match sentinel")
	}
}

func TestSeriesUpdate_Channel(t *testing.T) {
	u := SeriesUpdate{Symbol: "NIFTY", Timeframe: TF15m}
	if got := u.Channel(); got != "candle:15m:NIFTY" {
		t.Fatalf("expected candle:15m:NIFTY, got %s", got)
	}
}

func TestCandleFromFloats(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	got, err := CandleFromFloats(ts, 100, 101.5, 99.25, 100.75, 1200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Low.Equal(decimal.RequireFromString("99.25")) {
		t.Errorf("expected low=99.25, got %s", got.Low)
	}

	_, err = CandleFromFloats(ts, 100, math.NaN(), 99, 100, 1)
	var dae *DomainArithmeticError
	if !errors.As(err, &dae) || dae.Field != "high" {
		t.Errorf("expected DomainArithmeticError on high, got %v", err)
	}
}
