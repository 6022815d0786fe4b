package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// State is the lifecycle state of a session.
type State string

const (
	StateNotStarted State = "not_started"
	StateActive     State = "active"
	StateFinalizing State = "finalizing"
	StateFinalized  State = "finalized"
)

var (
	ErrNoQuestions    = errors.New("module has no questions")
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotActive      = errors.New("session is not active")
	ErrNothingToRetry = errors.New("no failed submission to retry")
	ErrClosed         = errors.New("session closed")
	ErrSubmitFailed   = errors.New("attempt submission failed")
)

// SubmitError wraps a result-store or answer-key failure during finalize.
// The attempt is kept and can be resubmitted with Retry.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return "attempt submission failed: " + e.Err.Error()
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

func (e *SubmitError) Is(target error) bool {
	return target == ErrSubmitFailed
}

// KeySource supplies the answer key. The controller only calls it while finalizing.
type KeySource interface {
	AnswerKey(ctx context.Context, moduleID uuid.UUID) (model.AnswerKey, error)
}

// ResultStore persists a finalized attempt and returns it with its
// server-assigned ID and timestamp.
type ResultStore interface {
	SaveAttempt(ctx context.Context, attempt *model.Attempt) (*model.Attempt, error)
}

// Outcome is the authoritative result of a finalized session.
type Outcome struct {
	Attempt model.Attempt        `json:"attempt"`
	Result  grading.Result       `json:"result"`
	Review  []grading.ReviewItem `json:"review"`
}

func (o *Outcome) clone() *Outcome {
	c := *o
	c.Attempt = *o.Attempt.Clone()
	c.Review = append([]grading.ReviewItem(nil), o.Review...)
	return &c
}

// View is a point-in-time snapshot of a session for rendering.
type View struct {
	SessionID    uuid.UUID                `json:"session_id"`
	ModuleID     uuid.UUID                `json:"module_id"`
	State        State                    `json:"state"`
	Index        int                      `json:"index"`
	Total        int                      `json:"total_questions"`
	Question     *model.CandidateQuestion `json:"question,omitempty"`
	Selected     model.OptionKey          `json:"selected,omitempty"`
	Answered     int                      `json:"answered"`
	Palette      []bool                   `json:"palette"` // Palette[i] is true once question i has a selection.
	Remaining    int                      `json:"remaining_seconds"`
	Violations   int                      `json:"violations"`
	Secure       bool                     `json:"secure"`
	SubmitFailed bool                     `json:"submit_failed"`
}
