// Package ledger holds the candidate's selected option per question.
package ledger

import (
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	ErrUnknownQuestion = errors.New("question does not belong to this module")
	ErrInvalidOption   = errors.New("option must be one of a, b, c, d")
)

// Ledger maps question IDs to the selected option. Entries are never removed.
// It is not safe for concurrent use.
type Ledger struct {
	allowed map[uuid.UUID]struct{}
	answers map[uuid.UUID]model.OptionKey
}

// New creates an empty ledger restricted to questionIDs.
func New(questionIDs []uuid.UUID) *Ledger {
	allowed := make(map[uuid.UUID]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		allowed[id] = struct{}{}
	}
	return &Ledger{
		allowed: allowed,
		answers: make(map[uuid.UUID]model.OptionKey, len(questionIDs)),
	}
}

// Select records key for questionID, replacing any earlier selection.
func (l *Ledger) Select(questionID uuid.UUID, key model.OptionKey) error {
	if _, ok := l.allowed[questionID]; !ok {
		return ErrUnknownQuestion
	}
	if !key.Valid() {
		return ErrInvalidOption
	}
	l.answers[questionID] = key
	return nil
}

// Get returns the selection for questionID.
func (l *Ledger) Get(questionID uuid.UUID) (model.OptionKey, bool) {
	k, ok := l.answers[questionID]
	return k, ok
}

// AnsweredCount returns the number of distinct answered questions.
func (l *Ledger) AnsweredCount() int {
	return len(l.answers)
}

// Snapshot returns an independent copy of all selections.
func (l *Ledger) Snapshot() map[uuid.UUID]model.OptionKey {
	out := make(map[uuid.UUID]model.OptionKey, len(l.answers))
	for id, k := range l.answers {
		out[id] = k
	}
	return out
}
