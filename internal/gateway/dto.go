package gateway

import (
	"time"

	"barreplay/internal/model"
)

// ReplayState is the control-surface view of the replay clock.
type ReplayState struct {
	Symbol     string            `json:"symbol"`
	TF         model.Timeframe   `json:"tf"`
	Mode       string            `json:"mode"`
	State      string            `json:"state"`
	Offset     int               `json:"offset"`
	Marker     time.Time         `json:"marker"` // open time of the newest revealed base bar
	Remaining  int               `json:"remaining"`
	Playing    bool              `json:"playing"`
	Speed      float64           `json:"speed"`
	Timeframes []model.Timeframe `json:"timeframes"`
}

// TFInfo is the REST response type for /api/tfs.
type TFInfo struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// stateMessage is pushed to every WS client after a clock change.
type stateMessage struct {
	Type  string      `json:"type"`
	State ReplayState `json:"state"`
}

// SubscribeMsg is the client SUBSCRIBE / UNSUBSCRIBE request.
type SubscribeMsg struct {
	Type   string `json:"type"`
	ReqID  string `json:"req_id,omitempty"`
	Symbol string `json:"symbol"`
	TF     string `json:"tf"`
}

// CommandMsg is a client replay command: ADVANCE, RESET, MODE, PLAY, PAUSE.
type CommandMsg struct {
	Type  string  `json:"type"`
	ReqID string  `json:"req_id,omitempty"`
	N     int     `json:"n,omitempty"`
	Mode  string  `json:"mode,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Error string `json:"error"`
}
