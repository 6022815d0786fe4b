package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const feedDrainTimeout = 5 * time.Second

// ViolationFeed observes every session. It queues violations for the audit
// worker and publishes session activity on the module's monitor channel.
//
// Observe never blocks: events are buffered and dropped (with a warning) when
// the buffer is full.
type ViolationFeed struct {
	rdb     *redis.Client
	log     zerolog.Logger
	events  chan model.FeedEvent
	dropped atomic.Int64
	now     func() time.Time
}

// NewViolationFeed creates a feed with the given buffer size.
func NewViolationFeed(rdb *redis.Client, buffer int, log zerolog.Logger) *ViolationFeed {
	if buffer <= 0 {
		buffer = 256
	}
	return &ViolationFeed{
		rdb:    rdb,
		log:    log.With().Str("component", "violation_feed").Logger(),
		events: make(chan model.FeedEvent, buffer),
		now:    time.Now,
	}
}

// Observe implements session.Observer.
func (f *ViolationFeed) Observe(ev session.Event) {
	fe := model.FeedEvent{
		SessionID:  ev.SessionID,
		ModuleID:   ev.ModuleID,
		UserID:     ev.UserID,
		Violations: ev.Violations,
		At:         f.now().UTC(),
	}

	switch ev.Kind {
	case session.EventStateChanged:
		if ev.View == nil || ev.View.State != session.StateActive {
			return
		}
		fe.Type = model.FeedSessionStarted
		fe.Total = ev.View.Total
	case session.EventViolation:
		if ev.Violation == nil {
			return
		}
		fe.Type = model.FeedViolation
		fe.Violation = ev.Violation.Type
		fe.At = ev.Violation.Timestamp
	case session.EventSubmitFailed:
		fe.Type = model.FeedSubmitFailed
		if ev.View != nil {
			fe.Violations = ev.View.Violations
		}
	case session.EventFinalized:
		if ev.Outcome == nil {
			return
		}
		score := ev.Outcome.Result.Score
		fe.Type = model.FeedSessionFinalized
		fe.Score = &score
		fe.Total = ev.Outcome.Result.Total
		fe.Trigger = ev.Outcome.Attempt.Trigger
		fe.Violations = ev.Outcome.Attempt.ProctoringViolations
	default:
		return
	}

	select {
	case f.events <- fe:
	default:
		n := f.dropped.Add(1)
		f.log.Warn().
			Str("session_id", fe.SessionID.String()).
			Str("type", string(fe.Type)).
			Int64("dropped_total", n).
			Msg("Feed buffer full, dropping event")
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (f *ViolationFeed) Dropped() int64 {
	return f.dropped.Load()
}

// Run forwards buffered events to Redis until ctx is cancelled, then drains
// what is left with a short deadline.
func (f *ViolationFeed) Run(ctx context.Context) {
	f.log.Info().Msg("Violation feed started")
	for {
		select {
		case fe := <-f.events:
			f.forward(ctx, fe)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

func (f *ViolationFeed) drain() {
	drainCtx, cancel := context.WithTimeout(context.Background(), feedDrainTimeout)
	defer cancel()

	n := 0
	for {
		select {
		case fe := <-f.events:
			f.forward(drainCtx, fe)
			n++
		default:
			f.log.Info().Int("drained", n).Msg("Violation feed stopped")
			return
		}
	}
}

func (f *ViolationFeed) forward(ctx context.Context, fe model.FeedEvent) {
	data, err := json.Marshal(fe)
	if err != nil {
		f.log.Error().Err(err).Msg("Marshal feed event")
		return
	}

	pipe := f.rdb.Pipeline()
	if fe.Type == model.FeedViolation {
		audit, err := json.Marshal(model.ProctoringEvent{
			SessionID:  fe.SessionID,
			ModuleID:   fe.ModuleID,
			UserID:     fe.UserID,
			Type:       fe.Violation,
			OccurredAt: fe.At,
		})
		if err == nil {
			pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, audit)
		}
	}
	pipe.Publish(ctx, config.CacheKey.ModuleMonitorChannel(fe.ModuleID.String()), data)

	if _, err := pipe.Exec(ctx); err != nil {
		f.log.Error().Err(err).
			Str("session_id", fe.SessionID.String()).
			Str("type", string(fe.Type)).
			Msg("Failed to forward feed event")
	}
}
