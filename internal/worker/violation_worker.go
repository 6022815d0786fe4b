package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationSink is the audit-log writer.
type ViolationSink interface {
	BulkInsert(ctx context.Context, events []model.ProctoringEvent) error
	Insert(ctx context.Context, e model.ProctoringEvent) error
}

// ViolationWorker drains persist_violations_queue into proctoring_events.
type ViolationWorker struct {
	sink           ViolationSink
	rdb            *redis.Client
	log            zerolog.Logger
	batchSize      int
	batchTimeout   time.Duration
	requeueBackoff time.Duration
}

func NewViolationWorker(sink ViolationSink, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		sink:           sink,
		rdb:            rdb,
		log:            log.With().Str("component", "violation_worker").Logger(),
		batchSize:      BatchSize,
		batchTimeout:   BatchTimeout,
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds. Call in a goroutine.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.ProctoringEvent, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop returns immediately if data exists, otherwise after PollTimeout
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		// 4. Decode
		if len(result) < 2 {
			continue
		}

		var ev model.ProctoringEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed payloads can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, ev)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ProctoringEvent) {
	if err := w.sink.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Violations persisted")
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ProctoringEvent) {
	var requeueList []model.ProctoringEvent

	for _, ev := range batch {
		if err := w.sink.Insert(ctx, ev); err != nil {
			w.log.Error().Err(err).Str("session_id", ev.SessionID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []model.ProctoringEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violations to Redis. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off so a hard database outage does not spin.
	if w.requeueBackoff > 0 {
		select {
		case <-time.After(w.requeueBackoff):
		case <-ctx.Done():
		}
	}
}

func (w *ViolationWorker) shutdown(buffer []model.ProctoringEvent) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
