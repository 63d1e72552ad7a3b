package indicator

import (
	"encoding/json"
	"testing"

	"barreplay/internal/model"
	"barreplay/internal/session"
)

func TestSnapshot_FromResults(t *testing.T) {
	e, err := NewEngine(defaultConfigs(), session.UTCCalendar{})
	if err != nil {
		t.Fatal(err)
	}
	s := fixture(t, 10)
	results, err := e.EvaluateLast(s)
	if err != nil {
		t.Fatal(err)
	}

	snap := NewSnapshot("NIFTY", results)
	if snap.TF != model.TF1m || snap.Index != 9 {
		t.Fatalf("unexpected header %+v", snap)
	}
	// RSI_14 is not ready after 10 candles
	if _, ok := snap.Values["RSI_14"]; ok {
		t.Error("not-ready RSI_14 should be omitted")
	}
	names := snap.Names()
	if len(names) != 2 || names[0] != "EMA_9" || names[1] != "VWAP" {
		t.Errorf("unexpected names %v", names)
	}
	if snap.Key() != "ind:1m:NIFTY" {
		t.Errorf("unexpected key %s", snap.Key())
	}

	fields := snap.Fields()
	if fields["EMA_9"] != snap.Values["EMA_9"].String() || fields["index"] != "9" {
		t.Errorf("unexpected fields %v", fields)
	}

	var decoded Snapshot
	if err := json.Unmarshal(snap.JSON(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Values["EMA_9"].Equal(snap.Values["EMA_9"]) || decoded.TF != model.TF1m {
		t.Errorf("decoded snapshot differs: %+v", decoded)
	}
}
