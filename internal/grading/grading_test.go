package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
)

// buildAttempt creates a key of n questions (all "a") and answers with the
// given number of correct, wrong and unanswered entries.
func buildAttempt(correct, wrong, unanswered int) (map[uuid.UUID]model.OptionKey, model.AnswerKey) {
	key := model.AnswerKey{}
	answers := map[uuid.UUID]model.OptionKey{}
	for i := 0; i < correct+wrong+unanswered; i++ {
		id := uuid.New()
		key[id] = model.OptionA
		switch {
		case i < correct:
			answers[id] = model.OptionA
		case i < correct+wrong:
			answers[id] = model.OptionC
		}
	}
	return answers, key
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name                       string
		correct, wrong, unanswered int
		wantScore, wantPct         int
		wantGrade                  string
		wantPass                   bool
	}{
		{"six of ten", 6, 2, 2, 6, 60, "C", false},
		{"seven of ten", 7, 3, 0, 7, 70, "B", true},
		{"nine of ten", 9, 0, 1, 9, 90, "A+", true},
		{"all correct", 10, 0, 0, 10, 100, "A+", true},
		{"eight of ten", 8, 2, 0, 8, 80, "A", true},
		{"half", 5, 0, 5, 5, 50, "D", false},
		{"none answered", 0, 0, 10, 0, 0, "F", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers, key := buildAttempt(tt.correct, tt.wrong, tt.unanswered)
			got := Evaluate(answers, key)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, 10, got.Total)
			assert.Equal(t, tt.wantPct, got.Percentage)
			assert.Equal(t, tt.wantGrade, got.Grade)
			assert.Equal(t, tt.wantPass, got.Passed)
		})
	}
}

func TestPercentage_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, 67, Percentage(2, 3)) // 66.67
	assert.Equal(t, 33, Percentage(1, 3)) // 33.33
	assert.Equal(t, 50, Percentage(1, 2)) // 50
	assert.Equal(t, 13, Percentage(1, 8)) // 12.5
	assert.Equal(t, 88, Percentage(7, 8)) // 87.5
	assert.Equal(t, 0, Percentage(0, 0))
}

func TestGradeBoundaries(t *testing.T) {
	cases := map[int]string{100: "A+", 90: "A+", 89: "A", 80: "A", 79: "B", 70: "B", 69: "C", 60: "C", 59: "D", 50: "D", 49: "F", 0: "F"}
	for pct, want := range cases {
		if got := Grade(pct); got != want {
			t.Fatalf("Grade(%d)=%q, want %q", pct, got, want)
		}
	}
	assert.True(t, Passed(70))
	assert.False(t, Passed(69))
}

func TestScore_IgnoresMalformedAndForeignAnswers(t *testing.T) {
	q1, q2 := uuid.New(), uuid.New()
	key := model.AnswerKey{q1: model.OptionB, q2: model.OptionD}
	answers := map[uuid.UUID]model.OptionKey{
		q1:         model.OptionKey("B"),
		q2:         model.OptionD,
		uuid.New(): model.OptionA,
	}
	assert.Equal(t, 1, Score(answers, key))
	assert.Equal(t, 0, Score(nil, key))
}

func TestReview(t *testing.T) {
	q1, q2 := uuid.New(), uuid.New()
	questions := []model.CandidateQuestion{{ID: q1, Number: 1}, {ID: q2, Number: 2}}
	key := model.AnswerKey{q1: model.OptionA, q2: model.OptionB}

	items := Review(questions, map[uuid.UUID]model.OptionKey{q1: model.OptionA}, key)
	assert.Len(t, items, 2)
	assert.True(t, items[0].Correct)
	assert.False(t, items[1].Correct)
	assert.Equal(t, model.OptionKey(""), items[1].Selected)
	assert.Equal(t, model.OptionB, items[1].CorrectOption)
}
