package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
)

// Controller is the replay the gateway drives. Implementations serialise
// calls themselves.
type Controller interface {
	State() ReplayState
	Advance(ctx context.Context, n int) (ReplayState, error)
	Reset(ctx context.Context) (ReplayState, error)
	SetMode(mode string) (ReplayState, error)
	Play(speed float64) (ReplayState, error)
	Pause() ReplayState

	// Candles returns up to limit newest candles of the base series or of a
	// resampled timeframe.
	Candles(tf model.Timeframe, limit int) ([]model.Candle, error)
	Indicators(tf model.Timeframe) (indicator.Snapshot, error)
	IndicatorConfigs() []indicator.TFConfig
	ReloadIndicators(configs []indicator.TFConfig) (preserved, created int, err error)
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// Hub manages WebSocket clients and fans live replay updates out to them.
type Hub struct {
	Control Controller

	// OnClientCount is called with the new count after a connect or
	// disconnect.
	OnClientCount func(n int)

	clientBuffer int
	now          func() time.Time

	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
}

// NewHub creates a hub. clientBuffer is the per-client send queue length.
func NewHub(ctrl Controller, clientBuffer int) *Hub {
	if clientBuffer <= 0 {
		clientBuffer = 256
	}
	return &Hub{
		Control:      ctrl,
		clientBuffer: clientBuffer,
		now:          time.Now,
		clients:      make(map[*Client]bool),
		latest:       make(map[string]latestEntry),
		channelSeqs:  make(map[string]int64),
		replayBufs:   make(map[string]*ReplayBuffer),
	}
}

// Run broadcasts updates from in until ctx is cancelled or in is closed.
func (h *Hub) Run(ctx context.Context, in <-chan model.SeriesUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				return
			}
			h.BroadcastUpdate(u)
		}
	}
}

// PushState tells every client the replay clock moved.
func (h *Hub) PushState(st ReplayState) {
	h.broadcastControl(stateMessage{Type: "state", State: st})
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
// Clients reconnecting with lastTS only get latest values newer than it.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, h.clientBuffer),
		hub:  h,
		subs: make(map[string]bool),
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "clients", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// GetLatestAll returns the latest payload of every channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for channel with channel_seq in
// [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// GetChannelSeq returns the current sequence number of channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
