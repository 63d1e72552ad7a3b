package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Timeframe is the fixed bar duration of a series, in seconds.
type Timeframe int

const (
	TF1m  Timeframe = 60
	TF3m  Timeframe = 3 * 60
	TF5m  Timeframe = 5 * 60
	TF15m Timeframe = 15 * 60
	TF30m Timeframe = 30 * 60
	TF1h  Timeframe = 60 * 60
	TF2h  Timeframe = 2 * 60 * 60
	TF4h  Timeframe = 4 * 60 * 60
	TF1d  Timeframe = 24 * 60 * 60
	TF1w  Timeframe = 7 * 24 * 60 * 60
)

var timeframeLabels = map[Timeframe]string{
	TF1m:  "1m",
	TF3m:  "3m",
	TF5m:  "5m",
	TF15m: "15m",
	TF30m: "30m",
	TF1h:  "1h",
	TF2h:  "2h",
	TF4h:  "4h",
	TF1d:  "1d",
	TF1w:  "1w",
}

// ParseTimeframe accepts a label ("5m", "1h") or a plain number of seconds ("300").
func ParseTimeframe(s string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for tf, label := range timeframeLabels {
		if label == key {
			return tf, nil
		}
	}
	if n, err := strconv.Atoi(key); err == nil {
		tf := Timeframe(n)
		if tf.Valid() {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
}

// Timeframes returns every supported timeframe, shortest first.
func Timeframes() []Timeframe {
	out := make([]Timeframe, 0, len(timeframeLabels))
	for tf := range timeframeLabels {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether tf is one of the enumerated timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeLabels[tf]
	return ok
}

// Duration returns the bar length.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Second
}

// Label returns the short form ("5m"), or "<n>s" for values outside the enum.
func (tf Timeframe) Label() string {
	if l, ok := timeframeLabels[tf]; ok {
		return l
	}
	return strconv.Itoa(int(tf)) + "s"
}

func (tf Timeframe) String() string { return tf.Label() }

// MarshalText lets timeframes be used as JSON map keys and YAML scalars.
func (tf Timeframe) MarshalText() ([]byte, error) {
	return []byte(tf.Label()), nil
}

func (tf *Timeframe) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}
	*tf = parsed
	return nil
}
