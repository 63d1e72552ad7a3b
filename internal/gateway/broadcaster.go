package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
)

const replayBufferSize = 500

// appendEnvelope writes {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
// by hand; data must already be valid JSON.
func appendEnvelope(buf []byte, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	return append(buf, '}')
}

// Broadcast sends data on channel to every client subscribed to it, stamping
// the global and per-channel sequence numbers and keeping the envelope for
// gap backfill. Slow clients miss the message rather than block.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.channelSeqs[channel]++
	seq, channelSeq := h.seq, h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(replayBufferSize)
		h.replayBufs[channel] = rb
	}

	// pushed and delivered under the hub lock so buffer and clients see
	// channel sequences in order
	buf := appendEnvelope(make([]byte, 0, len(channel)+len(data)+160), channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// BroadcastUpdate sends a series update on its "candle:{tf}:{symbol}" channel.
func (h *Hub) BroadcastUpdate(u model.SeriesUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	h.Broadcast(u.Channel(), data)
}

// BroadcastSnapshot sends indicator values on their "ind:{tf}:{symbol}" channel.
func (h *Hub) BroadcastSnapshot(snap indicator.Snapshot) {
	h.Broadcast(snap.Key(), snap.JSON())
}

// broadcastControl sends a message that every client receives regardless of
// subscriptions, without sequence tracking.
func (h *Hub) broadcastControl(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}
