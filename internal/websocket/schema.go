package websocket

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart            Action = "start"
	ActionSelect           Action = "select"
	ActionNavigate         Action = "navigate"
	ActionSubmit           Action = "submit"
	ActionRetry            Action = "retry"
	ActionState            Action = "state"
	ActionSignal           Action = "signal"
	ActionFullscreenResult Action = "fullscreen_result"
	ActionPing             Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action" validate:"required"`
}

// SelectRequest records the candidate's choice for one question.
type SelectRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id" validate:"required,uuid"`
	Answer string `json:"ans" validate:"required,oneof=a b c d A B C D"`
}

// Navigation targets.
const (
	NavigateNext     = "next"
	NavigatePrevious = "previous"
	NavigateGoTo     = "goto"
)

// NavigateRequest moves the cursor. Index is only read for "goto".
type NavigateRequest struct {
	Action Action `json:"action"`
	To     string `json:"to" validate:"required,oneof=next previous goto"`
	Index  int    `json:"index" validate:"min=0"`
}

// SignalRequest forwards a raw browser signal to the proctoring monitor.
type SignalRequest struct {
	Action Action `json:"action"`
	proctor.Signal
}

// FullscreenResultRequest answers a fullscreen_request event.
type FullscreenResultRequest struct {
	Action  Action `json:"action"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason" validate:"max=256"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState             Event = "state"
	EventTick              Event = "tick"
	EventViolation         Event = "violation"
	EventSuppressed        Event = "suppressed"
	EventFullscreenRequest Event = "fullscreen_request"
	EventFullscreenExit    Event = "fullscreen_exit"
	EventFullscreenDenied  Event = "fullscreen_denied"
	EventGraded            Event = "graded"
	EventSubmitFailed      Event = "submit_failed"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

type StateResponse struct {
	Event Event        `json:"event"`
	View  session.View `json:"view"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type ViolationResponse struct {
	Event     Event               `json:"event"`
	Type      model.ViolationType `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Count     int                 `json:"count"`
}

// SuppressedResponse echoes a signal whose default action the client must cancel.
type SuppressedResponse struct {
	Event   Event              `json:"event"`
	Kind    proctor.SignalKind `json:"kind"`
	Key     string             `json:"key,omitempty"`
	KeyCode int                `json:"key_code,omitempty"`
}

// FullscreenResponse carries fullscreen_request and fullscreen_exit.
type FullscreenResponse struct {
	Event Event `json:"event"`
}

type FullscreenDeniedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type GradedResponse struct {
	Event   Event                `json:"event"`
	Attempt model.Attempt        `json:"attempt"`
	Result  grading.Result       `json:"result"`
	Review  []grading.ReviewItem `json:"review"`
}

type SubmitFailedResponse struct {
	Event     Event  `json:"event"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewGradedResponse flattens a session outcome into a graded event.
func NewGradedResponse(o *session.Outcome) GradedResponse {
	return GradedResponse{
		Event:   EventGraded,
		Attempt: o.Attempt,
		Result:  o.Result,
		Review:  o.Review,
	}
}
