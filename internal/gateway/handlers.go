package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
	"barreplay/internal/replay"
)

const (
	defaultCandleLimit = 200
	maxCandleLimit     = 5000
	maxAdvance         = 10000
)

// RouteConfig holds HTTP surface options.
type RouteConfig struct {
	// AllowedOrigins lists origins accepted for CORS and WS upgrades; empty
	// or "*" allows any.
	AllowedOrigins []string
}

func (rc RouteConfig) allowOrigin(origin string) bool {
	if origin == "" || len(rc.AllowedOrigins) == 0 || slices.Contains(rc.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(rc.AllowedOrigins, origin)
}

func (rc RouteConfig) setCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	switch {
	case len(rc.AllowedOrigins) == 0 || slices.Contains(rc.AllowedOrigins, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case slices.Contains(rc.AllowedOrigins, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	default:
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, replay.ErrInputExhausted), errors.Is(err, replay.ErrRewind):
		code = http.StatusConflict
	case errors.Is(err, model.ErrUnknownTimeframe), errors.Is(err, model.ErrTimeframeMismatch),
		errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return errors.Join(errBadRequest, errors.New(msg))
}

// queryTF parses ?tf=, falling back to fallback when absent.
func queryTF(r *http.Request, fallback model.Timeframe) (model.Timeframe, error) {
	v := r.URL.Query().Get("tf")
	if v == "" {
		return fallback, nil
	}
	return model.ParseTimeframe(v)
}

func queryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, badRequest(key + " must be an integer in [" + strconv.Itoa(lo) + ", " + strconv.Itoa(hi) + "]")
	}
	return n, nil
}

// RegisterRoutes registers the WebSocket endpoint and the REST control
// surface on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rc RouteConfig) {
	upgrader := websocket.Upgrader{
		CheckOrigin:       func(r *http.Request) bool { return rc.allowOrigin(r.Header.Get("Origin")) },
		EnableCompression: true,
	}
	ctrl := hub.Control

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			rc.setCORS(w, r)
			fn(w, r)
		})
	}
	preflight := func(w http.ResponseWriter, r *http.Request) {
		rc.setCORS(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
	mux.HandleFunc("OPTIONS /api/", preflight)

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "error", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	handle("GET /api/replay/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctrl.State())
	})

	handle("GET /api/marker", func(w http.ResponseWriter, r *http.Request) {
		st := ctrl.State()
		writeJSON(w, http.StatusOK, map[string]any{"marker": st.Marker, "offset": st.Offset, "state": st.State})
	})

	handle("POST /api/replay/advance", func(w http.ResponseWriter, r *http.Request) {
		n, err := queryInt(r, "n", 1, 1, maxAdvance)
		if err != nil {
			writeError(w, err)
			return
		}
		st, err := ctrl.Advance(r.Context(), n)
		if err != nil {
			writeError(w, err)
			return
		}
		hub.PushState(st)
		writeJSON(w, http.StatusOK, st)
	})

	handle("POST /api/replay/reset", func(w http.ResponseWriter, r *http.Request) {
		st, err := ctrl.Reset(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		hub.PushState(st)
		writeJSON(w, http.StatusOK, st)
	})

	handle("PUT /api/replay/mode", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, badRequest("invalid JSON"))
			return
		}
		st, err := ctrl.SetMode(req.Mode)
		if err != nil {
			writeError(w, badRequest(err.Error()))
			return
		}
		hub.PushState(st)
		writeJSON(w, http.StatusOK, st)
	})

	handle("POST /api/replay/play", func(w http.ResponseWriter, r *http.Request) {
		speed := 0.0
		if v := r.URL.Query().Get("speed"); v != "" {
			s, err := strconv.ParseFloat(v, 64)
			if err != nil || s <= 0 {
				writeError(w, badRequest("speed must be a positive number"))
				return
			}
			speed = s
		}
		st, err := ctrl.Play(speed)
		if err != nil {
			writeError(w, err)
			return
		}
		hub.PushState(st)
		writeJSON(w, http.StatusOK, st)
	})

	handle("POST /api/replay/pause", func(w http.ResponseWriter, r *http.Request) {
		st := ctrl.Pause()
		hub.PushState(st)
		writeJSON(w, http.StatusOK, st)
	})

	handle("GET /api/tfs", func(w http.ResponseWriter, r *http.Request) {
		tfs := ctrl.State().Timeframes
		out := make([]TFInfo, len(tfs))
		for i, tf := range tfs {
			out[i] = TFInfo{Seconds: int(tf), Label: tf.Label()}
		}
		writeJSON(w, http.StatusOK, out)
	})

	handle("GET /api/series", func(w http.ResponseWriter, r *http.Request) {
		tf, err := queryTF(r, ctrl.State().TF)
		if err != nil {
			writeError(w, err)
			return
		}
		limit, err := queryInt(r, "limit", defaultCandleLimit, 1, maxCandleLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		candles, err := ctrl.Candles(tf, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, candles)
	})

	handle("GET /api/indicators", func(w http.ResponseWriter, r *http.Request) {
		tf, err := queryTF(r, ctrl.State().TF)
		if err != nil {
			writeError(w, err)
			return
		}
		snap, err := ctrl.Indicators(tf)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	handle("GET /api/indicators/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.GetLatestAll())
	})

	handle("GET /api/indicators/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctrl.IndicatorConfigs())
	})

	handle("PUT /api/indicators/config", func(w http.ResponseWriter, r *http.Request) {
		var req []indicator.TFConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, badRequest("invalid JSON: "+err.Error()))
			return
		}
		preserved, created, err := ctrl.ReloadIndicators(req)
		if err != nil {
			writeError(w, badRequest(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"preserved": preserved, "created": created})
	})

	handle("GET /api/missed", func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			writeError(w, badRequest("channel is required"))
			return
		}
		from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		if err != nil {
			writeError(w, badRequest("from must be an integer"))
			return
		}
		to := hub.GetChannelSeq(channel)
		if v := r.URL.Query().Get("to"); v != "" {
			if to, err = strconv.ParseInt(v, 10, 64); err != nil {
				writeError(w, badRequest("to must be an integer"))
				return
			}
		}
		envelopes := hub.GetReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		writeJSON(w, http.StatusOK, out)
	})

	handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ws_clients": hub.ClientCount()})
	})
}
