// Package session decides where trading sessions begin. Session starts
// drive VWAP resets and the grouping of base candles into higher-timeframe
// bars.
package session

import (
	"fmt"
	"strings"
	"time"

	"barreplay/internal/model"
	"barreplay/internal/series"
)

// Start reports whether position i of s opens a new session.
// Position 0 always starts one. Key identifies the strategy for cache keys.
type Start interface {
	Key() string
	IsSessionStart(s series.CandleSeries, i int) bool
}

// Calendar picks the session-start strategy for a target timeframe.
type Calendar interface {
	For(tf model.Timeframe) Start
}

// Aligned starts a session whenever a candle falls into a new fixed-width
// bucket. Buckets are computed on the wall clock of Location, shifted by
// Offset (e.g. 9h15m for an exchange that opens at 09:15). Weekly buckets
// begin on Monday.
type Aligned struct {
	TF       model.Timeframe
	Location *time.Location
	Offset   time.Duration
}

func (a Aligned) Key() string {
	loc := "UTC"
	if a.Location != nil {
		loc = a.Location.String()
	}
	if a.Offset != 0 {
		return fmt.Sprintf("aligned(%s,%s,%s)", a.TF.Label(), loc, a.Offset)
	}
	return fmt.Sprintf("aligned(%s,%s)", a.TF.Label(), loc)
}

func (a Aligned) IsSessionStart(s series.CandleSeries, i int) bool {
	if i == 0 {
		return true
	}
	return a.Bucket(s.At(i).OpenTime) != a.Bucket(s.At(i-1).OpenTime)
}

// epochMonday shifts the Unix epoch (a Thursday) so weekly buckets start on Monday.
const epochMonday = 3 * 24 * 60 * 60

// Bucket returns the bucket number containing t.
func (a Aligned) Bucket(t time.Time) int64 {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	_, zoneOff := t.In(loc).Zone()
	sec := t.Unix() + int64(zoneOff) - int64(a.Offset/time.Second)
	width := int64(a.TF)
	if a.TF == model.TF1w {
		sec += epochMonday
	}
	if width <= 0 {
		return sec
	}
	return floorDiv(sec, width)
}

// BucketStart returns the open time of the bucket containing t.
func (a Aligned) BucketStart(t time.Time) time.Time {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	_, zoneOff := t.In(loc).Zone()
	start := a.Bucket(t)*int64(a.TF) - int64(zoneOff) + int64(a.Offset/time.Second)
	if a.TF == model.TF1w {
		start -= epochMonday
	}
	return time.Unix(start, 0).In(loc)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Either starts a session when any of its members does.
type Either []Start

func (e Either) Key() string {
	keys := make([]string, len(e))
	for i, s := range e {
		keys[i] = s.Key()
	}
	return "either(" + strings.Join(keys, ",") + ")"
}

func (e Either) IsSessionStart(s series.CandleSeries, i int) bool {
	if i == 0 {
		return true
	}
	for _, st := range e {
		if st.IsSessionStart(s, i) {
			return true
		}
	}
	return false
}

// UTCCalendar aligns every timeframe to UTC wall-clock buckets.
type UTCCalendar struct{}

func (UTCCalendar) For(tf model.Timeframe) Start {
	return Aligned{TF: tf, Location: time.UTC}
}

// ExchangeCalendar aligns intraday buckets to the exchange open and starts
// daily sessions on each new trading date.
type ExchangeCalendar struct {
	Hours *Hours
}

func (c ExchangeCalendar) For(tf model.Timeframe) Start {
	h := c.Hours
	switch {
	case tf >= model.TF1w:
		return Aligned{TF: model.TF1w, Location: h.Location}
	case tf >= model.TF1d:
		return h
	default:
		return Either{h, Aligned{TF: tf, Location: h.Location, Offset: h.Open}}
	}
}
