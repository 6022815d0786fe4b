package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const moduleColumns = `m.id, m.title, m.description, m.duration_minutes, m.created_at,
	(SELECT COUNT(*) FROM questions q WHERE q.module_id = m.id)`

// ModuleRepository handles module data access.
type ModuleRepository struct {
	pool *pgxpool.Pool
}

// NewModuleRepository creates a new ModuleRepository.
func NewModuleRepository(pool *pgxpool.Pool) *ModuleRepository {
	return &ModuleRepository{pool: pool}
}

// GetByID retrieves a module by its UUID together with its question count.
func (r *ModuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Module, error) {
	m := &model.Module{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+moduleColumns+` FROM modules m WHERE m.id = $1`, id,
	).Scan(&m.ID, &m.Title, &m.Description, &m.DurationMinutes, &m.CreatedAt, &m.QuestionCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// List returns every module, newest first.
// Used by the candidate catalogue and cache prewarming on startup.
func (r *ModuleRepository) List(ctx context.Context) ([]model.Module, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+moduleColumns+` FROM modules m ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []model.Module
	for rows.Next() {
		var m model.Module
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.DurationMinutes, &m.CreatedAt, &m.QuestionCount); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// Create inserts a new module.
func (r *ModuleRepository) Create(ctx context.Context, m *model.Module) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO modules (title, description, duration_minutes)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		m.Title, m.Description, m.DurationMinutes,
	).Scan(&m.ID, &m.CreatedAt)
}
