package model

import (
	"time"

	"github.com/google/uuid"
)

// Module is an exam definition. It is read-only to the session engine.
type Module struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	QuestionCount   int       `json:"total_questions"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// DurationSeconds returns the session time budget in seconds.
func (m *Module) DurationSeconds() int {
	return m.DurationMinutes * 60
}

// ModulePayload is the Redis-cached payload sent to candidates (no correct answers).
type ModulePayload struct {
	Module    Module              `json:"module"`
	Questions []CandidateQuestion `json:"questions"`
}
