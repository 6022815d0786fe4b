package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Upsert(t *testing.T) {
	q1, q2 := uuid.New(), uuid.New()
	l := New([]uuid.UUID{q1, q2})

	require.NoError(t, l.Select(q1, model.OptionB))
	require.NoError(t, l.Select(q1, model.OptionD))

	got, ok := l.Get(q1)
	assert.True(t, ok)
	assert.Equal(t, model.OptionD, got)
	assert.Equal(t, 1, l.AnsweredCount())

	_, ok = l.Get(q2)
	assert.False(t, ok)

	require.NoError(t, l.Select(q2, model.OptionA))
	assert.Equal(t, 2, l.AnsweredCount())
}

func TestLedger_Rejects(t *testing.T) {
	q1 := uuid.New()
	l := New([]uuid.UUID{q1})

	assert.ErrorIs(t, l.Select(uuid.New(), model.OptionA), ErrUnknownQuestion)
	assert.ErrorIs(t, l.Select(q1, model.OptionKey("e")), ErrInvalidOption)
	assert.ErrorIs(t, l.Select(q1, ""), ErrInvalidOption)
	assert.Zero(t, l.AnsweredCount())
}

func TestLedger_SnapshotIsIndependent(t *testing.T) {
	q1 := uuid.New()
	l := New([]uuid.UUID{q1})
	require.NoError(t, l.Select(q1, model.OptionA))

	snap := l.Snapshot()
	require.NoError(t, l.Select(q1, model.OptionC))
	snap[uuid.New()] = model.OptionB

	assert.Equal(t, model.OptionA, snap[q1])
	assert.Equal(t, 1, l.AnsweredCount())
}
