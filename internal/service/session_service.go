package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/session"
)

var ErrSessionAlreadyOpen = errors.New("a session for this module is already open")

// releaseLock deletes the lock only if it still belongs to the session.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionOptions tunes the controllers opened by SessionService.
type SessionOptions struct {
	FullscreenTimeout time.Duration
	SubmitTimeout     time.Duration
	LockGrace         time.Duration
	TimerOptions      []countdown.Option
}

// SessionOptionsFromConfig maps application config onto SessionOptions.
func SessionOptionsFromConfig(cfg *config.Config) SessionOptions {
	return SessionOptions{
		FullscreenTimeout: cfg.FullscreenTimeout,
		SubmitTimeout:     cfg.SubmitTimeout,
		LockGrace:         cfg.SessionLockGrace,
	}
}

// SessionService opens session controllers and keeps at most one live
// session per candidate and module, guarded by a Redis lock.
type SessionService struct {
	content  *ContentService
	attempts *AttemptService
	feed     session.Observer
	rdb      *redis.Client
	opts     SessionOptions
	log      zerolog.Logger

	mu   sync.Mutex
	live map[uuid.UUID]*session.Controller
}

// NewSessionService creates a new SessionService. feed may be nil.
func NewSessionService(
	content *ContentService,
	attempts *AttemptService,
	feed session.Observer,
	rdb *redis.Client,
	opts SessionOptions,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		content:  content,
		attempts: attempts,
		feed:     feed,
		rdb:      rdb,
		opts:     opts,
		log:      log.With().Str("component", "session_service").Logger(),
		live:     make(map[uuid.UUID]*session.Controller),
	}
}

// Open loads the module, takes the candidate's lock and returns a controller
// in the not-started state. The lock is released when the controller closes.
func (s *SessionService) Open(ctx context.Context, userID string, moduleID uuid.UUID, host proctor.Host, obs session.Observer) (*session.Controller, error) {
	payload, err := s.content.GetModulePayload(ctx, moduleID)
	if err != nil {
		switch {
		case errors.Is(err, ErrModuleNotFound):
			return nil, err
		case errors.Is(err, ErrModuleEmpty):
			return nil, session.ErrNoQuestions
		case errors.Is(err, ErrContentUnavailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
		}
	}

	sessionID := uuid.New()
	lockKey := config.CacheKey.SessionLockKey(userID, moduleID.String())
	ttl := time.Duration(payload.Module.DurationSeconds())*time.Second + s.opts.LockGrace

	ok, err := s.rdb.SetNX(ctx, lockKey, sessionID.String(), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, ErrSessionAlreadyOpen
	}

	observers := session.Observers{obs}
	if s.feed != nil {
		observers = append(observers, s.feed)
	}

	ctrl, err := session.New(session.Config{
		SessionID:         sessionID,
		UserID:            userID,
		Module:            payload.Module,
		Questions:         payload.Questions,
		Host:              host,
		Keys:              s.content,
		Store:             s.attempts,
		Observer:          observers,
		Log:               s.log,
		TimerOptions:      s.opts.TimerOptions,
		FullscreenTimeout: s.opts.FullscreenTimeout,
		SubmitTimeout:     s.opts.SubmitTimeout,
	})
	if err != nil {
		s.unlock(lockKey, sessionID)
		return nil, err
	}

	s.mu.Lock()
	s.live[sessionID] = ctrl
	s.mu.Unlock()

	go func() {
		<-ctrl.Done()
		s.mu.Lock()
		delete(s.live, sessionID)
		s.mu.Unlock()
		s.unlock(lockKey, sessionID)
	}()

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("module_id", moduleID.String()).
		Str("user_id", userID).
		Msg("Session opened")
	return ctrl, nil
}

func (s *SessionService) unlock(lockKey string, sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := releaseLock.Run(ctx, s.rdb, []string{lockKey}, sessionID.String()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to release session lock")
	}
}

// LiveCount returns the number of open controllers.
func (s *SessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown closes every live controller. Sessions that are mid-finalize lose
// their in-memory result but the store call itself is not cancelled.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(s.live))
	for _, c := range s.live {
		ctrls = append(ctrls, c)
	}
	s.mu.Unlock()

	for _, c := range ctrls {
		c.Close()
	}
	s.log.Info().Int("closed", len(ctrls)).Msg("Live sessions closed")
}
