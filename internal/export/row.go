package export

import (
	"fmt"

	"barreplay/internal/indicator"
	"barreplay/internal/series"
)

// Row is one exported candle with the indicator values at its position.
// Prices and values are decimal strings so exports stay exact.
type Row struct {
	Timestamp  int64             `json:"t" parquet:"t"` // open time, unix milliseconds
	Open       string            `json:"o" parquet:"o"`
	High       string            `json:"h" parquet:"h"`
	Low        string            `json:"l" parquet:"l"`
	Close      string            `json:"c" parquet:"c"`
	Volume     string            `json:"v" parquet:"v"`
	Indicators map[string]string `json:"ind,omitempty" parquet:"ind"`
}

// Rows converts s into rows. When engine is non-nil every position carries
// the ready indicator values configured for s's timeframe.
func Rows(s series.CandleSeries, engine *indicator.Engine) ([]Row, error) {
	rows := make([]Row, s.Len())
	for i := range rows {
		c := s.At(i)
		rows[i] = Row{
			Timestamp: c.OpenTime.UnixMilli(),
			Open:      c.Open.String(),
			High:      c.High.String(),
			Low:       c.Low.String(),
			Close:     c.Close.String(),
			Volume:    c.Volume.String(),
		}
		if engine == nil {
			continue
		}
		results, err := engine.Evaluate(s, i)
		if err != nil {
			return nil, fmt.Errorf("evaluate position %d: %w", i, err)
		}
		for _, r := range results {
			if !r.Ready {
				continue
			}
			if rows[i].Indicators == nil {
				rows[i].Indicators = make(map[string]string, len(results))
			}
			rows[i].Indicators[r.Name] = r.Value.String()
		}
	}
	return rows, nil
}
