package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"barreplay/internal/model"
)

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func TestAppendEnvelopeFormat(t *testing.T) {
	channel := "candle:5m:NIFTY"
	data := []byte(`{"symbol":"NIFTY","candle":{"ts":"2024-01-01T00:00:00Z","open":"100"}}`)
	now := time.Date(2024, 1, 1, 0, 5, 1, 0, time.UTC)

	buf := appendEnvelope(nil, channel, data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("seq: got %d/%d, want 42/7", env.Seq, env.ChannelSeq)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Fatalf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
	var payload map[string]any
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
}

func TestHub_BroadcastSequences(t *testing.T) {
	h := NewHub(nil, 8)
	h.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		h.Broadcast("candle:1m:NIFTY", []byte(`{}`))
	}
	h.Broadcast("ind:1m:NIFTY", []byte(`{"values":{}}`))

	if got := h.GetChannelSeq("candle:1m:NIFTY"); got != 3 {
		t.Errorf("candle channel seq: got %d, want 3", got)
	}
	if got := h.GetChannelSeq("ind:1m:NIFTY"); got != 1 {
		t.Errorf("ind channel seq: got %d, want 1", got)
	}

	missed := h.GetReplayRange("candle:1m:NIFTY", 2, 3)
	if len(missed) != 2 {
		t.Fatalf("replay range: got %d envelopes, want 2", len(missed))
	}
	var env envelope
	if err := json.Unmarshal(missed[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.ChannelSeq != 2 || env.Seq != 2 {
		t.Errorf("first missed envelope: got seq %d channel_seq %d", env.Seq, env.ChannelSeq)
	}

	latest := h.GetLatestAll()
	if string(latest["ind:1m:NIFTY"]) != `{"values":{}}` {
		t.Errorf("latest ind payload: got %s", latest["ind:1m:NIFTY"])
	}
}

func TestHub_BroadcastUpdateChannel(t *testing.T) {
	h := NewHub(nil, 8)
	h.BroadcastUpdate(model.SeriesUpdate{Symbol: "NIFTY", Timeframe: model.TF15m, Kind: "append"})
	if h.GetChannelSeq("candle:15m:NIFTY") != 1 {
		t.Errorf("expected update on candle:15m:NIFTY, got %v", h.GetLatestAll())
	}
}

func TestChannelKey(t *testing.T) {
	tests := []struct {
		channel string
		want    string
		ok      bool
	}{
		{"candle:5m:NIFTY", "5m:NIFTY", true},
		{"ind:1h:BANKNIFTY", "1h:BANKNIFTY", true},
		{"garbage", "", false},
		{"candle:5m", "", false},
	}
	for _, tt := range tests {
		got, ok := channelKey(tt.channel)
		if got != tt.want || ok != tt.ok {
			t.Errorf("channelKey(%q) = %q, %v; want %q, %v", tt.channel, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClient_MatchesChannel(t *testing.T) {
	c := &Client{subs: map[string]bool{}}
	if !c.matchesChannel("candle:5m:NIFTY") {
		t.Error("client without subscriptions receives everything")
	}
	c.subs[subKey(model.TF5m, "NIFTY")] = true
	if !c.matchesChannel("ind:5m:NIFTY") {
		t.Error("expected indicator channel of subscribed series to match")
	}
	if c.matchesChannel("candle:15m:NIFTY") {
		t.Error("unsubscribed timeframe must not match")
	}
}

func TestHub_ConcurrentBroadcastKeepsBufferOrder(t *testing.T) {
	h := NewHub(nil, 8)
	const writers, each = 8, 50
	channel := "ind:1m:NIFTY"

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				h.Broadcast(channel, []byte(`{}`))
			}
		}()
	}
	wg.Wait()

	got := h.GetReplayRange(channel, 1, writers*each)
	if len(got) != writers*each {
		t.Fatalf("buffered %d envelopes, want %d", len(got), writers*each)
	}
	for i, raw := range got {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatal(err)
		}
		if env.ChannelSeq != int64(i+1) {
			t.Fatalf("position %d holds channel_seq %d", i, env.ChannelSeq)
		}
	}
}
