package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentService_PayloadSelfHeals(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mods, qs := &fakeModules{}, &fakeQuestions{}
	m := seedModule(mods, qs, 3, 20)
	svc := NewContentService(mods, qs, rdb, zerolog.Nop())

	payload, err := svc.GetModulePayload(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, payload.Module.ID)
	assert.Equal(t, 3, payload.Module.QuestionCount)
	require.Len(t, payload.Questions, 3)
	assert.Equal(t, 1, payload.Questions[0].Number)
	assert.Equal(t, 1, qs.Calls())

	cached, err := mr.Get(config.CacheKey.ModulePayloadKey(m.ID.String()))
	require.NoError(t, err)
	assert.False(t, strings.Contains(cached, "correct_option"), "payload must not carry the answer key")

	_, err = svc.GetModulePayload(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, qs.Calls(), "second read is served from redis")
}

func TestContentService_AnswerKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mods, qs := &fakeModules{}, &fakeQuestions{}
	m := seedModule(mods, qs, 4, 20)
	svc := NewContentService(mods, qs, rdb, zerolog.Nop())

	key, err := svc.AnswerKey(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, key, 4)
	for _, q := range qs.questions[m.ID] {
		assert.Equal(t, q.CorrectOption, key[q.ID])
	}

	mr.Del(config.CacheKey.ModuleAnswerKey(m.ID.String()))
	key, err = svc.AnswerKey(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, key, 4)
	assert.True(t, mr.Exists(config.CacheKey.ModuleAnswerKey(m.ID.String())))
}

func TestContentService_Errors(t *testing.T) {
	_, rdb := newTestRedis(t)
	mods, qs := &fakeModules{}, &fakeQuestions{}
	empty := seedModule(mods, qs, 0, 20)
	svc := NewContentService(mods, qs, rdb, zerolog.Nop())

	_, err := svc.GetModulePayload(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrModuleNotFound)

	_, err = svc.GetModulePayload(context.Background(), empty.ID)
	assert.ErrorIs(t, err, ErrModuleEmpty)

	mods.err = errors.New("db down")
	_, err = svc.AnswerKey(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestContentService_ServesFromDatabaseWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mods, qs := &fakeModules{}, &fakeQuestions{}
	m := seedModule(mods, qs, 2, 20)
	svc := NewContentService(mods, qs, rdb, zerolog.Nop())

	mr.SetError("ERR server unavailable")

	payload, err := svc.GetModulePayload(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, payload.Questions, 2)
}

func TestContentService_PrewarmSkipsEmptyModules(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mods, qs := &fakeModules{}, &fakeQuestions{}
	full := seedModule(mods, qs, 2, 20)
	empty := seedModule(mods, qs, 0, 20)
	svc := NewContentService(mods, qs, rdb, zerolog.Nop())

	require.NoError(t, svc.PrewarmAllCaches(context.Background()))
	assert.True(t, mr.Exists(config.CacheKey.ModulePayloadKey(full.ID.String())))
	assert.False(t, mr.Exists(config.CacheKey.ModulePayloadKey(empty.ID.String())))
}
