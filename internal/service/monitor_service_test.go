package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter map[uuid.UUID]int64

func (f fakeCounter) CountsByModule(context.Context, uuid.UUID) (map[uuid.UUID]int64, error) {
	return f, nil
}

func (f fakeCounter) ListBySession(context.Context, uuid.UUID) ([]model.ProctoringEvent, error) {
	return nil, nil
}

func TestMonitorService_Snapshot(t *testing.T) {
	_, rdb := newTestRedis(t)
	s1, s2 := uuid.New(), uuid.New()
	svc := NewMonitorService(fakeCounter{s1: 2, s2: 3}, rdb, zerolog.Nop())

	snap, err := svc.GetViolationSnapshot(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Total)
	assert.Equal(t, int64(3), snap.Sessions[s2])
}

func TestMonitorService_ListSessionViolationsNeverNil(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewMonitorService(fakeCounter{}, rdb, zerolog.Nop())

	events, err := svc.ListSessionViolations(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestMonitorService_Subscribe(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewMonitorService(fakeCounter{}, rdb, zerolog.Nop())
	moduleID := uuid.New()

	events, cancel, err := svc.Subscribe(context.Background(), moduleID)
	require.NoError(t, err)
	defer cancel()

	channel := config.CacheKey.ModuleMonitorChannel(moduleID.String())
	require.NoError(t, rdb.Publish(context.Background(), channel, "{broken").Err())

	want := model.FeedEvent{Type: model.FeedSessionStarted, ModuleID: moduleID, UserID: "u9", Total: 10}
	data, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, rdb.Publish(context.Background(), channel, data).Err())

	select {
	case got := <-events:
		assert.Equal(t, model.FeedSessionStarted, got.Type)
		assert.Equal(t, "u9", got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}
