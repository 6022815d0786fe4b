package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OptionKey identifies one of the four answer options.
type OptionKey string

const (
	OptionA OptionKey = "a"
	OptionB OptionKey = "b"
	OptionC OptionKey = "c"
	OptionD OptionKey = "d"
)

// OptionKeys lists the option keys in display order.
var OptionKeys = [4]OptionKey{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether k is one of a, b, c, d.
func (k OptionKey) Valid() bool {
	switch k {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// ParseOptionKey normalizes s and validates it as an option key.
func ParseOptionKey(s string) (OptionKey, error) {
	k := OptionKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("invalid option key %q", s)
	}
	return k, nil
}

// Options holds the four option texts of a question.
type Options struct {
	A string `json:"a"`
	B string `json:"b"`
	C string `json:"c"`
	D string `json:"d"`
}

// Text returns the option text for k, or "" for an unknown key.
func (o Options) Text(k OptionKey) string {
	switch k {
	case OptionA:
		return o.A
	case OptionB:
		return o.B
	case OptionC:
		return o.C
	case OptionD:
		return o.D
	}
	return ""
}

// Question is a single-choice question including its answer key.
// It never leaves the server before the attempt is finalized.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ModuleID      uuid.UUID `json:"module_id"`
	Number        int       `json:"question_number"`
	Prompt        string    `json:"question_text"`
	Options       Options   `json:"options"`
	CorrectOption OptionKey `json:"correct_option"`
}

// CandidateQuestion is a question without the correct answer, sent to candidates.
type CandidateQuestion struct {
	ID       uuid.UUID `json:"id"`
	ModuleID uuid.UUID `json:"module_id"`
	Number   int       `json:"question_number"`
	Prompt   string    `json:"question_text"`
	Options  Options   `json:"options"`
}

// ForCandidate strips the answer key.
func (q *Question) ForCandidate() CandidateQuestion {
	return CandidateQuestion{
		ID:       q.ID,
		ModuleID: q.ModuleID,
		Number:   q.Number,
		Prompt:   q.Prompt,
		Options:  q.Options,
	}
}

// AnswerKey maps question IDs to their correct option.
type AnswerKey map[uuid.UUID]OptionKey
