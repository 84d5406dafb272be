package websocket

import (
	"encoding/json"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionGoTo     Action = "goto"
	ActionSelect   Action = "select"
	ActionClear    Action = "clear"
	ActionBookmark Action = "bookmark"
	ActionSubmit   Action = "submit"
	ActionPause    Action = "pause"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// GoToRequest jumps to a question from the palette.
type GoToRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
}

// SelectRequest answers the current question.
type SelectRequest struct {
	Action Action `json:"action"`
	Option *int   `json:"option" binding:"required,min=0"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError           Event = "error"
	EventAck             Event = "ack"
	EventPong            Event = "pong"
	EventQuestion        Event = "question"
	EventTick            Event = "tick"
	EventExpired         Event = "expired"
	EventSubmitRequested Event = "submit_requested"
	EventSubmitted       Event = "submitted"
	EventPaused          Event = "paused"
	EventReset           Event = "reset"
)

// AckResponse confirms a command that produced no other event.
type AckResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
	Data   any    `json:"data,omitempty"`
}

type QuestionResponse struct {
	Event      Event `json:"event"`
	Index      int   `json:"index"`
	Total      int   `json:"total"`
	Question   any   `json:"question"`
	Selected   *int  `json:"selected"`
	Bookmarked bool  `json:"bookmarked"`
}

type TickResponse struct {
	Event       Event    `json:"event"`
	Kind        string   `json:"kind"`
	RemainingMs int64    `json:"remaining_ms"`
	Text        string   `json:"text"`
	Level       string   `json:"level"`
	Progress    *float64 `json:"progress,omitempty"`
	AlertMs     *int64   `json:"alert_ms,omitempty"`
}

type ExpiredResponse struct {
	Event Event  `json:"event"`
	Kind  string `json:"kind"`
}

type SubmitRequestedResponse struct {
	Event      Event `json:"event"`
	Answered   int   `json:"answered"`
	Unanswered int   `json:"unanswered"`
}

type SubmittedResponse struct {
	Event        Event  `json:"event"`
	Forced       bool   `json:"forced"`
	DisplayScore string `json:"display_score"`
	Result       any    `json:"result"`
}

type StateResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
