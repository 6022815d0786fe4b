package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationReader reads the persisted audit log.
type ViolationReader interface {
	CountsByModule(ctx context.Context, moduleID uuid.UUID) (map[uuid.UUID]int64, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ProctoringEvent, error)
}

// MonitorService backs the live proctor feed of a module.
type MonitorService struct {
	violations ViolationReader
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(violations ViolationReader, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		violations: violations,
		rdb:        rdb,
		log:        log.With().Str("component", "monitor_service").Logger(),
	}
}

// ViolationSnapshot summarizes the persisted audit log of a module.
type ViolationSnapshot struct {
	Sessions map[uuid.UUID]int64 `json:"sessions"`
	Total    int64               `json:"total_violations"`
}

// GetViolationSnapshot returns the persisted violation count per session.
func (s *MonitorService) GetViolationSnapshot(ctx context.Context, moduleID uuid.UUID) (*ViolationSnapshot, error) {
	counts, err := s.violations.CountsByModule(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}
	snap := &ViolationSnapshot{Sessions: counts}
	if snap.Sessions == nil {
		snap.Sessions = map[uuid.UUID]int64{}
	}
	for _, n := range snap.Sessions {
		snap.Total += n
	}
	return snap, nil
}

// ListSessionViolations returns the audit trail of one session in order.
func (s *MonitorService) ListSessionViolations(ctx context.Context, sessionID uuid.UUID) ([]model.ProctoringEvent, error) {
	events, err := s.violations.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session violations: %w", err)
	}
	if events == nil {
		events = []model.ProctoringEvent{}
	}
	return events, nil
}

// Subscribe streams feed events of a module until ctx is done or the
// returned cancel func is called. Malformed messages are skipped.
func (s *MonitorService) Subscribe(ctx context.Context, moduleID uuid.UUID) (<-chan model.FeedEvent, func(), error) {
	pubsub := s.rdb.Subscribe(ctx, config.CacheKey.ModuleMonitorChannel(moduleID.String()))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe monitor channel: %w", err)
	}

	out := make(chan model.FeedEvent, 64)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var fe model.FeedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &fe); err != nil {
					s.log.Warn().Err(err).Msg("Skipping malformed feed message")
					continue
				}
				select {
				case out <- fe:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
