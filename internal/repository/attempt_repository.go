package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const attemptColumns = `id, session_id, user_id, module_id, score, total_questions,
	time_taken_minutes, answers, proctoring_violations, trigger, completed_at, recorded_at`

// AttemptRepository persists finalized attempts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create stores an attempt and fills in its ID and recorded_at.
// session_id is unique: resubmitting the same session returns the stored row
// unchanged, so a retry after a lost response never duplicates an attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (session_id, user_id, module_id, score, total_questions,
		                       time_taken_minutes, answers, proctoring_violations, trigger, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING id, recorded_at`,
		a.SessionID, a.UserID, a.ModuleID, a.Score, a.TotalQuestions,
		a.TimeTakenMinutes, a.Answers, a.ProctoringViolations, string(a.Trigger), a.CompletedAt,
	).Scan(&a.ID, &a.RecordedAt)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListByUser retrieves a candidate's attempts, most recent first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID string, filter model.AttemptFilter) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1 AND ($2::uuid IS NULL OR module_id = $2)
		 ORDER BY completed_at DESC
		 LIMIT $3`, userID, filter.ModuleID, filter.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	var (
		a       model.Attempt
		trigger string
	)
	if err := row.Scan(&a.ID, &a.SessionID, &a.UserID, &a.ModuleID, &a.Score, &a.TotalQuestions,
		&a.TimeTakenMinutes, &a.Answers, &a.ProctoringViolations, &trigger, &a.CompletedAt, &a.RecordedAt); err != nil {
		return nil, err
	}
	a.Trigger = model.FinalizeTrigger(trigger)
	return &a, nil
}
