package model

import (
	"time"

	"github.com/google/uuid"
)

// FinalizeTrigger records what ended a session.
type FinalizeTrigger string

const (
	TriggerSubmitted FinalizeTrigger = "submitted"
	TriggerExpired   FinalizeTrigger = "expired"
)

// Attempt is the finalized, immutable result of one exam session.
type Attempt struct {
	ID                   uuid.UUID               `json:"id"`
	SessionID            uuid.UUID               `json:"session_id"`
	UserID               string                  `json:"user_id"`
	ModuleID             uuid.UUID               `json:"module_id"`
	Score                int                     `json:"score"`
	TotalQuestions       int                     `json:"total_questions"`
	TimeTakenMinutes     int                     `json:"time_taken_minutes"`
	Answers              map[uuid.UUID]OptionKey `json:"answers"`
	ProctoringViolations int                     `json:"proctoring_violations"`
	Trigger              FinalizeTrigger         `json:"trigger"`
	CompletedAt          time.Time               `json:"completed_at"`
	RecordedAt           time.Time               `json:"recorded_at"`
}

// AttemptFilter narrows a candidate's attempt history.
// A nil ModuleID matches every module; Limit <= 0 means the default page.
type AttemptFilter struct {
	ModuleID *uuid.UUID
	Limit    int
}

// Clone returns a deep copy; the answers map is not shared.
func (a *Attempt) Clone() *Attempt {
	c := *a
	c.Answers = make(map[uuid.UUID]OptionKey, len(a.Answers))
	for k, v := range a.Answers {
		c.Answers[k] = v
	}
	return &c
}
