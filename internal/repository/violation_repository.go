package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationRepository writes and reads the proctoring audit log.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// BulkInsert writes a batch of events with a single COPY.
func (r *ViolationRepository) BulkInsert(ctx context.Context, events []model.ProctoringEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.SessionID, e.ModuleID, e.UserID, string(e.Type), e.OccurredAt})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"proctoring_events"},
		[]string{"session_id", "module_id", "user_id", "type", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single event.
func (r *ViolationRepository) Insert(ctx context.Context, e model.ProctoringEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctoring_events (session_id, module_id, user_id, type, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.SessionID, e.ModuleID, e.UserID, string(e.Type), e.OccurredAt,
	)
	return err
}

// ListBySession returns a session's events in occurrence order.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ProctoringEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, module_id, user_id, type, occurred_at
		 FROM proctoring_events
		 WHERE session_id = $1
		 ORDER BY occurred_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ProctoringEvent
	for rows.Next() {
		var (
			e   model.ProctoringEvent
			typ string
		)
		if err := rows.Scan(&e.SessionID, &e.ModuleID, &e.UserID, &typ, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = model.ViolationType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountsByModule returns the number of recorded violations per session of a module.
func (r *ViolationRepository) CountsByModule(ctx context.Context, moduleID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, COUNT(*)
		 FROM proctoring_events
		 WHERE module_id = $1
		 GROUP BY session_id`,
		moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var (
			sid   uuid.UUID
			count int64
		)
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
