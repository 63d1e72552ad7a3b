package replay

import (
	"barreplay/internal/model"
	"barreplay/internal/series"
	"barreplay/internal/session"
)

// Resample groups base into contiguous runs starting wherever start reports
// a session start and reduces each run with model.Reduce. The aggregate
// keeps the open time of its first candle.
func Resample(base series.CandleSeries, start session.Start) []model.Candle {
	n := base.Len()
	if n == 0 {
		return nil
	}
	var out []model.Candle
	agg := base.At(0)
	for i := 1; i < n; i++ {
		c := base.At(i)
		if start.IsSessionStart(base, i) {
			out = append(out, agg)
			agg = c
			continue
		}
		agg = agg.Merge(c)
	}
	return append(out, agg)
}

// lastRun returns the position where the run containing the newest base
// candle begins, or -1 for an empty series.
func lastRun(base series.CandleSeries, start session.Start) int {
	i := base.Len() - 1
	for i > 0 && !start.IsSessionStart(base, i) {
		i--
	}
	return i
}

// reduceFrom reduces base[from:].
func reduceFrom(base series.CandleSeries, from int) model.Candle {
	run := make([]model.Candle, 0, base.Len()-from)
	for i := from; i < base.Len(); i++ {
		run = append(run, base.At(i))
	}
	return model.Reduce(run)
}
