package websocket

import (
	"github.com/opencampus/portal-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSetAnswer Action = "set_answer"
	ActionSetText   Action = "set_text"
	ActionSave      Action = "save"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SetAnswerRequest records one answer in the attempt buffer.
type SetAnswerRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// SetTextRequest replaces the free-text answer of a written exam.
type SetTextRequest struct {
	Action Action `json:"action"`
	Text   string `json:"text"`
}

// SaveRequest asks for an immediate save of the attempt buffer.
type SaveRequest struct {
	Action Action `json:"action"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot  Event = "snapshot"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// SnapshotResponse streams the attempt state after every tick and transition.
type SnapshotResponse struct {
	Event    Event            `json:"event"`
	Snapshot session.Snapshot `json:"snapshot"`
}

// SavedResponse acknowledges an explicit save.
type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// SubmittedResponse acknowledges a finished attempt. Warning carries the
// partial-upload notice when some answer files did not make it.
type SubmittedResponse struct {
	Event   Event  `json:"event"`
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
