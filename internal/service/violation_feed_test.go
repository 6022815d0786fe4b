package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationEvent(moduleID uuid.UUID) session.Event {
	return session.Event{
		Kind:       session.EventViolation,
		SessionID:  uuid.New(),
		ModuleID:   moduleID,
		UserID:     "u1",
		Violation:  &model.ViolationEvent{Type: model.ViolationTabChange, Timestamp: time.Now().UTC()},
		Violations: 1,
	}
}

func TestViolationFeed_QueuesAndPublishes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	feed := NewViolationFeed(rdb, 8, zerolog.Nop())
	moduleID := uuid.New()

	sub := rdb.Subscribe(context.Background(), config.CacheKey.ModuleMonitorChannel(moduleID.String()))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	ev := violationEvent(moduleID)
	feed.Observe(ev)

	select {
	case msg := <-sub.Channel():
		var fe model.FeedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &fe))
		assert.Equal(t, model.FeedViolation, fe.Type)
		assert.Equal(t, model.ViolationTabChange, fe.Violation)
		assert.Equal(t, ev.SessionID, fe.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no feed message published")
	}

	items, err := mr.List(config.WorkerKey.PersistViolationsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)
	var audit model.ProctoringEvent
	require.NoError(t, json.Unmarshal([]byte(items[0]), &audit))
	assert.Equal(t, ev.SessionID, audit.SessionID)
	assert.Equal(t, "u1", audit.UserID)

	cancel()
	<-done
}

func TestViolationFeed_OnlyViolationsAreQueued(t *testing.T) {
	mr, rdb := newTestRedis(t)
	feed := NewViolationFeed(rdb, 8, zerolog.Nop())
	moduleID := uuid.New()

	feed.Observe(session.Event{Kind: session.EventTick, ModuleID: moduleID, Remaining: 10})
	feed.Observe(session.Event{
		Kind:     session.EventFinalized,
		ModuleID: moduleID,
		Outcome: &session.Outcome{
			Attempt: model.Attempt{Trigger: model.TriggerExpired, ProctoringViolations: 2},
			Result:  grading.Result{Score: 4, Total: 5},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	feed.Run(ctx)

	assert.False(t, mr.Exists(config.WorkerKey.PersistViolationsQueue))
	assert.Len(t, feed.events, 0)
}

func TestViolationFeed_DropsWhenFull(t *testing.T) {
	_, rdb := newTestRedis(t)
	feed := NewViolationFeed(rdb, 1, zerolog.Nop())
	moduleID := uuid.New()

	feed.Observe(violationEvent(moduleID))
	feed.Observe(violationEvent(moduleID))
	feed.Observe(violationEvent(moduleID))

	assert.Equal(t, int64(2), feed.Dropped())
}
