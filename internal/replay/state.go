package replay

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"barreplay/internal/model"
)

// Mode selects how Advance reveals candles.
type Mode int

const (
	// FullBar reveals one complete candle per step.
	FullBar Mode = iota
	// OHLC reveals each candle in four steps: open, first extreme,
	// second extreme, close.
	OHLC
)

func (m Mode) String() string {
	if m == OHLC {
		return "ohlc"
	}
	return "fullbar"
}

// ParseMode accepts "fullbar" or "ohlc" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fullbar", "full_bar", "full":
		return FullBar, nil
	case "ohlc":
		return OHLC, nil
	default:
		return FullBar, fmt.Errorf("unknown replay mode %q", s)
	}
}

// CandleState is the intrabar progress of the candle being revealed.
type CandleState int

const (
	Open CandleState = iota
	Extreme1
	Extreme2
	Close
)

// Next cycles Open -> Extreme1 -> Extreme2 -> Close -> Open.
func (s CandleState) Next() CandleState {
	return (s + 1) % 4
}

func (s CandleState) String() string {
	switch s {
	case Open:
		return "open"
	case Extreme1:
		return "extreme1"
	case Extreme2:
		return "extreme2"
	case Close:
		return "close"
	default:
		return fmt.Sprintf("CandleState(%d)", int(s))
	}
}

// volumeScale matches the indicator rounding scale.
const volumeScale int32 = 16

// Extremes returns the candle's high and low in revelation order. The
// extreme nearer to open comes first; on a tie the high comes first.
func Extremes(c model.Candle) (first, second decimal.Decimal) {
	toHigh := c.High.Sub(c.Open).Abs()
	toLow := c.Open.Sub(c.Low).Abs()
	if toLow.LessThan(toHigh) {
		return c.Low, c.High
	}
	return c.High, c.Low
}

// AtState synthesises the partial candle visible at state.
//
// Price path: open -> first extreme -> second extreme -> close, with the
// first extreme chosen by Extremes. High and low cover only the path walked
// so far and close is the current path point. Volume is revealed in
// proportion to the price distance travelled; a candle with no price
// movement reveals no volume until Close. Close returns c unchanged.
func AtState(c model.Candle, state CandleState) model.Candle {
	if state == Close {
		return c
	}
	e1, e2 := Extremes(c)
	legs := [3]decimal.Decimal{
		e1.Sub(c.Open).Abs(),
		e2.Sub(e1).Abs(),
		c.Close.Sub(e2).Abs(),
	}
	total := legs[0].Add(legs[1]).Add(legs[2])

	out := model.Candle{OpenTime: c.OpenTime, Open: c.Open}
	var walked decimal.Decimal
	switch state {
	case Open:
		out.High, out.Low, out.Close = c.Open, c.Open, c.Open
		walked = decimal.Zero
	case Extreme1:
		out.High = decimal.Max(c.Open, e1)
		out.Low = decimal.Min(c.Open, e1)
		out.Close = e1
		walked = legs[0]
	case Extreme2:
		out.High, out.Low, out.Close = c.High, c.Low, e2
		walked = legs[0].Add(legs[1])
	default:
		return c
	}

	if total.IsZero() {
		out.Volume = decimal.Zero
	} else {
		out.Volume = c.Volume.Mul(walked).DivRound(total, volumeScale)
	}
	return out
}
