package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	fail     bool
	bulk     int
	inserted []model.ProctoringEvent
}

func (f *fakeSink) BulkInsert(_ context.Context, events []model.ProctoringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk++
	if f.fail {
		return errors.New("copy failed")
	}
	f.inserted = append(f.inserted, events...)
	return nil
}

func (f *fakeSink) Insert(_ context.Context, e model.ProctoringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("insert failed")
	}
	f.inserted = append(f.inserted, e)
	return nil
}

func (f *fakeSink) Inserted() []model.ProctoringEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ProctoringEvent(nil), f.inserted...)
}

func setup(t *testing.T, sink ViolationSink) (*miniredis.Miniredis, *ViolationWorker) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := NewViolationWorker(sink, rdb, zerolog.Nop())
	w.batchTimeout = 10 * time.Millisecond
	w.requeueBackoff = 0
	return mr, w
}

func push(t *testing.T, mr *miniredis.Miniredis, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		data, err := json.Marshal(model.ProctoringEvent{
			SessionID:  uuid.New(),
			ModuleID:   uuid.New(),
			UserID:     "u1",
			Type:       model.ViolationCopyPaste,
			OccurredAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		_, err = mr.RPush(config.WorkerKey.PersistViolationsQueue, string(data))
		require.NoError(t, err)
	}
}

func run(w *ViolationWorker) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestViolationWorker_PersistsQueuedEvents(t *testing.T) {
	sink := &fakeSink{}
	mr, w := setup(t, sink)
	push(t, mr, 3)
	_, _ = mr.RPush(config.WorkerKey.PersistViolationsQueue, "{not json")

	stop := run(w)
	require.Eventually(t, func() bool { return len(sink.Inserted()) == 3 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.False(t, mr.Exists(config.WorkerKey.PersistViolationsQueue))
	assert.Equal(t, model.ViolationCopyPaste, sink.Inserted()[0].Type)
}

func TestViolationWorker_RequeuesWhenDatabaseFails(t *testing.T) {
	sink := &fakeSink{fail: true}
	mr, w := setup(t, sink)
	w.batchTimeout = time.Hour
	push(t, mr, 2)

	stop := run(w)
	require.Eventually(t, func() bool { return !mr.Exists(config.WorkerKey.PersistViolationsQueue) }, 5*time.Second, 10*time.Millisecond)
	stop()

	items, err := mr.List(config.WorkerKey.PersistViolationsQueue)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Empty(t, sink.Inserted())
}
