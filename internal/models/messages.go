package models

import "encoding/json"

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Commands sent by a client.
const (
	CmdStartCapture = "start_capture"
	CmdStopCapture  = "stop_capture"
	CmdReload       = "reload"
	CmdSetFilter    = "set_filter"
	CmdSelect       = "select"
	CmdFollow       = "follow"
	CmdClearFollow  = "clear_follow"
	CmdToggle       = "toggle"
	CmdSnapshot     = "get_snapshot"
)

// Messages pushed to a client.
const (
	MsgSession  = "session"
	MsgSnapshot = "snapshot"
	MsgNotice   = "notice"
	MsgError    = "error"
)

// FilterRequest carries the raw filter input. It is debounced server side.
type FilterRequest struct {
	Text string `json:"text"`
}

// SelectRequest selects a row either by record id or by 1-based display index.
type SelectRequest struct {
	ID    string `json:"id,omitempty"`
	Index int    `json:"index,omitempty"`
}

// ToggleRequest expands or collapses one node of the detail tree.
type ToggleRequest struct {
	Path string `json:"path"`
}

// SessionInfo is sent once after a WebSocket connection is accepted.
type SessionInfo struct {
	ID       string `json:"id"`
	Interval string `json:"interval"`
	Records  int    `json:"records"`
}

// NoticePayload is an informational, non-fatal message for the user.
type NoticePayload struct {
	Message string `json:"message"`
}

// ErrorPayload describes an error sent to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}
