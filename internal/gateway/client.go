package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"barreplay/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// subscriptions keyed "{tf}:{symbol}"; empty means everything
	subMu sync.RWMutex
	subs  map[string]bool
}

func subKey(tf model.Timeframe, symbol string) string {
	return tf.Label() + ":" + symbol
}

// channelKey maps "candle:5m:NIFTY" or "ind:5m:NIFTY" to "5m:NIFTY".
func channelKey(channel string) (string, bool) {
	_, rest, ok := strings.Cut(channel, ":")
	if !ok || !strings.Contains(rest, ":") {
		return "", false
	}
	return rest, true
}

func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	key, ok := channelKey(channel)
	if !ok {
		return true
	}
	return c.subs[key]
}

// sendInitialState queues the latest payload of every channel, skipping
// those not newer than lastTS when it parses.
func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// coalesce queued messages into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE", "UNSUBSCRIBE":
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				c.sendJSON(errorMessage{Type: "error", Error: "invalid " + base.Type + ": " + err.Error()})
				continue
			}
			c.handleSubscribe(sub)
		case "ADVANCE", "RESET", "MODE", "PLAY", "PAUSE", "STATE":
			var cmd CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				c.sendJSON(errorMessage{Type: "error", Error: "invalid command: " + err.Error()})
				continue
			}
			c.handleCommand(cmd)
		default:
			if base.Ping > 0 {
				c.sendJSON(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}

func (c *Client) handleSubscribe(msg SubscribeMsg) {
	tf, err := model.ParseTimeframe(msg.TF)
	if msg.Symbol == "" || err != nil {
		c.sendJSON(errorMessage{Type: "error", ReqID: msg.ReqID, Error: "symbol and a valid tf are required"})
		return
	}
	key := subKey(tf, msg.Symbol)

	c.subMu.Lock()
	if msg.Type == "SUBSCRIBE" {
		c.subs[key] = true
	} else {
		delete(c.subs, key)
	}
	c.subMu.Unlock()

	slog.Debug("ws subscription changed", "type", msg.Type, "key", key)
	c.sendJSON(map[string]string{"type": strings.ToLower(msg.Type) + "d", "req_id": msg.ReqID, "key": key})
}

// handleCommand runs a replay command and answers with the new state. The
// state is pushed to every client as well.
func (c *Client) handleCommand(cmd CommandMsg) {
	ctrl := c.hub.Control
	if ctrl == nil {
		c.sendJSON(errorMessage{Type: "error", ReqID: cmd.ReqID, Error: "no replay loaded"})
		return
	}

	ctx := context.Background()
	var (
		st  ReplayState
		err error
	)
	switch cmd.Type {
	case "ADVANCE":
		st, err = ctrl.Advance(ctx, max(cmd.N, 1))
	case "RESET":
		st, err = ctrl.Reset(ctx)
	case "MODE":
		st, err = ctrl.SetMode(cmd.Mode)
	case "PLAY":
		st, err = ctrl.Play(cmd.Speed)
	case "PAUSE":
		st = ctrl.Pause()
	case "STATE":
		c.sendJSON(stateMessage{Type: "state", State: ctrl.State()})
		return
	}
	if err != nil {
		c.sendJSON(errorMessage{Type: "error", ReqID: cmd.ReqID, Error: err.Error()})
		return
	}
	c.hub.PushState(st)
}

// sendJSON queues v for this client only, dropping it when the queue is full.
func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
