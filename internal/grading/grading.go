// Package grading scores a finalized attempt against the answer key.
// Every function here is total: unanswered or malformed answers count as wrong.
package grading

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// PassPercentage is the minimum percentage for a pass.
const PassPercentage = 70

type band struct {
	min   int
	grade string
}

var bands = []band{
	{90, "A+"},
	{80, "A"},
	{70, "B"},
	{60, "C"},
	{50, "D"},
}

// Result summarizes a scored attempt.
type Result struct {
	Score      int    `json:"score"`
	Total      int    `json:"total_questions"`
	Percentage int    `json:"percentage"`
	Grade      string `json:"grade"`
	Passed     bool   `json:"passed"`
}

// Score counts the questions whose selected option equals the correct one.
func Score(answers map[uuid.UUID]model.OptionKey, key model.AnswerKey) int {
	score := 0
	for id, correct := range key {
		if selected, ok := answers[id]; ok && selected.Valid() && selected == correct {
			score++
		}
	}
	return score
}

// Percentage returns round-half-up(100 * score / total), or 0 for an empty exam.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*score + total) / (2 * total)
}

// Grade maps a percentage to its letter band.
func Grade(percentage int) string {
	for _, b := range bands {
		if percentage >= b.min {
			return b.grade
		}
	}
	return "F"
}

// Passed reports whether percentage meets PassPercentage.
func Passed(percentage int) bool {
	return percentage >= PassPercentage
}

// Evaluate scores answers against key and grades the result.
func Evaluate(answers map[uuid.UUID]model.OptionKey, key model.AnswerKey) Result {
	score := Score(answers, key)
	pct := Percentage(score, len(key))
	return Result{
		Score:      score,
		Total:      len(key),
		Percentage: pct,
		Grade:      Grade(pct),
		Passed:     Passed(pct),
	}
}

// ReviewItem is one question of the post-finalize review.
type ReviewItem struct {
	QuestionID    uuid.UUID       `json:"question_id"`
	Number        int             `json:"question_number"`
	Selected      model.OptionKey `json:"selected,omitempty"`
	CorrectOption model.OptionKey `json:"correct_option"`
	Correct       bool            `json:"correct"`
}

// Review lists every question in order with the selected and correct options.
// Only call it after the attempt has been finalized.
func Review(questions []model.CandidateQuestion, answers map[uuid.UUID]model.OptionKey, key model.AnswerKey) []ReviewItem {
	items := make([]ReviewItem, 0, len(questions))
	for _, q := range questions {
		selected := answers[q.ID]
		correct := key[q.ID]
		items = append(items, ReviewItem{
			QuestionID:    q.ID,
			Number:        q.Number,
			Selected:      selected,
			CorrectOption: correct,
			Correct:       selected.Valid() && selected == correct,
		})
	}
	return items
}
