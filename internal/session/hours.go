package session

import (
	"fmt"
	"time"

	"barreplay/internal/series"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Hours describes an exchange's regular trading session. Open and Close are
// offsets from local midnight in Location.
type Hours struct {
	Name     string
	Location *time.Location
	Open     time.Duration
	Close    time.Duration
	holidays map[string]bool
}

// NewHours builds trading hours from "15:04" open/close strings and
// "2006-01-02" holiday dates.
func NewHours(name string, loc *time.Location, open, close string, holidays []string) (*Hours, error) {
	if loc == nil {
		loc = time.UTC
	}
	o, err := clockOffset(open)
	if err != nil {
		return nil, fmt.Errorf("hours %s: open: %w", name, err)
	}
	c, err := clockOffset(close)
	if err != nil {
		return nil, fmt.Errorf("hours %s: close: %w", name, err)
	}
	if c <= o {
		return nil, fmt.Errorf("hours %s: close %s not after open %s", name, close, open)
	}
	h := &Hours{Name: name, Location: loc, Open: o, Close: c, holidays: make(map[string]bool, len(holidays))}
	for _, d := range holidays {
		day, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			return nil, fmt.Errorf("hours %s: holiday %q: %w", name, d, err)
		}
		h.holidays[h.dateKey(day)] = true
	}
	return h, nil
}

// NSE returns the National Stock Exchange cash session (09:15 to 15:30 IST)
// with the published holiday list.
func NSE() *Hours {
	h, err := NewHours("NSE", IST, "09:15", "15:30", nseHolidays2026)
	if err != nil {
		panic(err)
	}
	return h
}

func clockOffset(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (h *Hours) dateKey(t time.Time) string {
	return t.In(h.Location).Format("2006-01-02")
}

func (h *Hours) midnight(t time.Time) time.Time {
	l := t.In(h.Location)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, h.Location)
}

// IsHoliday reports whether t's local date is a listed holiday.
func (h *Hours) IsHoliday(t time.Time) bool {
	return h.holidays[h.dateKey(t)]
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (h *Hours) IsTradingDay(t time.Time) bool {
	wd := t.In(h.Location).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !h.IsHoliday(t)
}

// IsOpen returns true if t falls within the regular session on a trading day.
func (h *Hours) IsOpen(t time.Time) bool {
	if !h.IsTradingDay(t) {
		return false
	}
	since := t.Sub(h.midnight(t))
	return since >= h.Open && since < h.Close
}

// TradingDate returns local midnight of t's date.
func (h *Hours) TradingDate(t time.Time) time.Time {
	return h.midnight(t)
}

// NextOpen returns the next session open at or after t.
// If t is before today's open on a trading day, returns today's open.
func (h *Hours) NextOpen(t time.Time) time.Time {
	todayOpen := h.midnight(t).Add(h.Open)
	if t.Before(todayOpen) && h.IsTradingDay(t) {
		return todayOpen
	}
	d := h.midnight(t)
	for i := 0; i < 15; i++ { // weekends plus clustered holidays
		d = d.AddDate(0, 0, 1)
		if h.IsTradingDay(d) {
			return d.Add(h.Open)
		}
	}
	return h.midnight(t).AddDate(0, 0, 1).Add(h.Open)
}

// TodayClose returns the close time on t's local date.
func (h *Hours) TodayClose(t time.Time) time.Time {
	return h.midnight(t).Add(h.Close)
}

// StatusString returns a human-readable market status.
func (h *Hours) StatusString(t time.Time) string {
	if h.IsOpen(t) {
		return fmt.Sprintf("%s open, closes in %s", h.Name, fmtDur(h.TodayClose(t).Sub(t)))
	}
	next := h.NextOpen(t)
	local := next.In(h.Location)
	return fmt.Sprintf("%s closed, opens %s %s (%s)",
		h.Name, local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	hrs := int(d.Hours())
	m := int(d.Minutes()) % 60
	if hrs > 0 {
		return fmt.Sprintf("%dh%dm", hrs, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Key implements Start.
func (h *Hours) Key() string {
	return fmt.Sprintf("hours(%s,%s,%s)", h.Name, h.Location, h.Open)
}

// IsSessionStart implements Start: a session begins at the first candle of
// each trading date.
func (h *Hours) IsSessionStart(s series.CandleSeries, i int) bool {
	if i == 0 {
		return true
	}
	return !h.TradingDate(s.At(i).OpenTime).Equal(h.TradingDate(s.At(i - 1).OpenTime))
}
