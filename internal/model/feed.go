package model

import (
	"time"

	"github.com/google/uuid"
)

// FeedEventType enumerates the proctor feed notifications.
type FeedEventType string

const (
	FeedSessionStarted   FeedEventType = "session_started"
	FeedViolation        FeedEventType = "violation"
	FeedSubmitFailed     FeedEventType = "submit_failed"
	FeedSessionFinalized FeedEventType = "session_finalized"
)

// FeedEvent is published on a module's monitor channel for live proctoring.
type FeedEvent struct {
	Type       FeedEventType   `json:"type"`
	SessionID  uuid.UUID       `json:"session_id"`
	ModuleID   uuid.UUID       `json:"module_id"`
	UserID     string          `json:"user_id"`
	Violation  ViolationType   `json:"violation,omitempty"`
	Violations int             `json:"violations"`
	Score      *int            `json:"score,omitempty"`
	Total      int             `json:"total_questions,omitempty"`
	Trigger    FinalizeTrigger `json:"trigger,omitempty"`
	At         time.Time       `json:"at"`
}
