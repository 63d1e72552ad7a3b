package indicator

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"barreplay/internal/model"
)

// Snapshot holds the evaluated indicators of one series at one position.
// It is the payload pushed to live consumers and written by exporters.
type Snapshot struct {
	Symbol string                     `json:"symbol"`
	TF     model.Timeframe            `json:"tf"`
	TS     time.Time                  `json:"ts"`
	Index  int                        `json:"index"`
	Values map[string]decimal.Decimal `json:"values"`
}

// NewSnapshot folds evaluated results into a snapshot. Results that are not
// ready yet are left out.
func NewSnapshot(symbol string, results []Result) Snapshot {
	snap := Snapshot{Symbol: symbol, Values: make(map[string]decimal.Decimal, len(results))}
	for _, r := range results {
		snap.TF, snap.TS, snap.Index = r.TF, r.TS, r.Index
		if r.Ready {
			snap.Values[r.Name] = r.Value
		}
	}
	return snap
}

// Names returns the value names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Values))
	for n := range s.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Key returns the storage key "ind:{tf}:{symbol}".
func (s Snapshot) Key() string {
	return "ind:" + s.TF.Label() + ":" + s.Symbol
}

// Fields flattens the snapshot into string fields for hash storage.
func (s Snapshot) Fields() map[string]string {
	out := make(map[string]string, len(s.Values)+2)
	out["ts"] = s.TS.UTC().Format(time.RFC3339)
	out["index"] = fmt.Sprint(s.Index)
	for n, v := range s.Values {
		out[n] = v.String()
	}
	return out
}

// JSON returns the JSON encoding (ignoring errors for hot-path usage).
func (s Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
