package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates proctoring violations.
type ViolationType string

const (
	ViolationTabChange      ViolationType = "tab_change"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationRightClick     ViolationType = "right_click"
	ViolationCopyPaste      ViolationType = "copy_paste"
)

// ViolationEvent is a single entry of the append-only violation log.
type ViolationEvent struct {
	Type      ViolationType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
}

// ProctoringEvent is a violation tagged with its session, as written to the audit log.
type ProctoringEvent struct {
	SessionID  uuid.UUID     `json:"session_id"`
	ModuleID   uuid.UUID     `json:"module_id"`
	UserID     string        `json:"user_id"`
	Type       ViolationType `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
}
