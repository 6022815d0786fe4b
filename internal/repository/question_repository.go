package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByModule retrieves all questions of a module, ordered by question number.
// The result includes the answer key and must stay server-side.
func (r *QuestionRepository) ListByModule(ctx context.Context, moduleID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, module_id, question_number, question_text,
		        option_a, option_b, option_c, option_d, correct_option
		 FROM questions WHERE module_id = $1
		 ORDER BY question_number`, moduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			correct string
		)
		if err := rows.Scan(&q.ID, &q.ModuleID, &q.Number, &q.Prompt,
			&q.Options.A, &q.Options.B, &q.Options.C, &q.Options.D, &correct); err != nil {
			return nil, err
		}
		q.CorrectOption = model.OptionKey(correct)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// BulkCreate inserts a module's questions with a single COPY.
func (r *QuestionRepository) BulkCreate(ctx context.Context, moduleID uuid.UUID, questions []model.Question) (int64, error) {
	rows := make([][]any, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, []any{
			moduleID, q.Number, q.Prompt,
			q.Options.A, q.Options.B, q.Options.C, q.Options.D, string(q.CorrectOption),
		})
	}

	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"module_id", "question_number", "question_text", "option_a", "option_b", "option_c", "option_d", "correct_option"},
		pgx.CopyFromRows(rows),
	)
}
