package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrInvalidAttempt  = errors.New("invalid attempt")
)

// AttemptStore persists and reads finalized attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListByUser(ctx context.Context, userID string, filter model.AttemptFilter) ([]model.Attempt, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// AttemptService is the result store behind every session.
type AttemptService struct {
	repo AttemptStore
	log  zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(repo AttemptStore, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		repo: repo,
		log:  log.With().Str("component", "attempt_service").Logger(),
	}
}

// SaveAttempt validates and stores a finalized attempt. The input is not
// modified; the stored copy with its ID and recorded_at is returned.
func (s *AttemptService) SaveAttempt(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	if err := validateAttempt(a); err != nil {
		return nil, err
	}

	stored := a.Clone()
	if err := s.repo.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", stored.ID.String()).
		Str("session_id", stored.SessionID.String()).
		Str("user_id", stored.UserID).
		Int("score", stored.Score).
		Int("total", stored.TotalQuestions).
		Msg("Attempt recorded")
	return stored, nil
}

// ListByUser returns a candidate's attempt history, newest first.
func (s *AttemptService) ListByUser(ctx context.Context, userID string, filter model.AttemptFilter) ([]model.Attempt, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultHistoryLimit
	case filter.Limit > maxHistoryLimit:
		filter.Limit = maxHistoryLimit
	}
	attempts, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

// GetForUser returns one attempt, hiding attempts owned by someone else.
func (s *AttemptService) GetForUser(ctx context.Context, id uuid.UUID, userID string) (*model.Attempt, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

func validateAttempt(a *model.Attempt) error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: nil attempt", ErrInvalidAttempt)
	case a.SessionID == uuid.Nil || a.ModuleID == uuid.Nil:
		return fmt.Errorf("%w: missing session or module", ErrInvalidAttempt)
	case a.UserID == "":
		return fmt.Errorf("%w: missing user", ErrInvalidAttempt)
	case a.Score < 0 || a.Score > a.TotalQuestions:
		return fmt.Errorf("%w: score %d out of range 0..%d", ErrInvalidAttempt, a.Score, a.TotalQuestions)
	case a.TimeTakenMinutes < 0:
		return fmt.Errorf("%w: negative time taken", ErrInvalidAttempt)
	case a.Trigger != model.TriggerSubmitted && a.Trigger != model.TriggerExpired:
		return fmt.Errorf("%w: unknown trigger %q", ErrInvalidAttempt, a.Trigger)
	}
	return nil
}
