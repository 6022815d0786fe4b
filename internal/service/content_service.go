package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Domain Errors
var (
	ErrModuleNotFound     = errors.New("module not found")
	ErrModuleEmpty        = errors.New("module has no questions")
	ErrContentUnavailable = errors.New("module content unavailable")

	errCacheWrite = errors.New("cache to redis")
)

// ModuleReader is the module lookup used by the content layer.
type ModuleReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Module, error)
	List(ctx context.Context) ([]model.Module, error)
}

// QuestionReader lists a module's questions including the answer key.
type QuestionReader interface {
	ListByModule(ctx context.Context, moduleID uuid.UUID) ([]model.Question, error)
}

// ContentService serves module payloads and answer keys from Redis,
// falling back to PostgreSQL and re-warming the cache on a miss.
type ContentService struct {
	modules   ModuleReader
	questions QuestionReader
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewContentService creates a new ContentService.
func NewContentService(modules ModuleReader, questions QuestionReader, rdb *redis.Client, log zerolog.Logger) *ContentService {
	return &ContentService{
		modules:   modules,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "content_service").Logger(),
	}
}

// ListModules returns the module catalogue.
func (s *ContentService) ListModules(ctx context.Context) ([]model.Module, error) {
	modules, err := s.modules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	if modules == nil {
		modules = []model.Module{}
	}
	return modules, nil
}

// GetModule retrieves a module's metadata.
func (s *ContentService) GetModule(ctx context.Context, id uuid.UUID) (*model.Module, error) {
	m, err := s.modules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("get module: %w", err)
	}
	return m, nil
}

// WarmModuleCache loads a module's payload and answer key from PostgreSQL
// into Redis and returns both. Empty modules are not cached. When only the
// Redis write fails, the built content is returned alongside the error.
func (s *ContentService) WarmModuleCache(ctx context.Context, module *model.Module) (*model.ModulePayload, model.AnswerKey, error) {
	questions, err := s.questions.ListByModule(ctx, module.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrModuleEmpty
	}

	m := *module
	m.QuestionCount = len(questions)
	payload := &model.ModulePayload{
		Module:    m,
		Questions: make([]model.CandidateQuestion, len(questions)),
	}
	key := make(model.AnswerKey, len(questions))
	hash := make(map[string]any, len(questions))
	for i := range questions {
		q := &questions[i]
		payload.Questions[i] = q.ForCandidate()
		key[q.ID] = q.CorrectOption
		hash[q.ID.String()] = string(q.CorrectOption)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	payloadKey := config.CacheKey.ModulePayloadKey(module.ID.String())
	answerKey := config.CacheKey.ModuleAnswerKey(module.ID.String())

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, payloadKey, payloadJSON, 0)
	pipe.Del(ctx, answerKey)
	pipe.HSet(ctx, answerKey, hash)
	if _, err := pipe.Exec(ctx); err != nil {
		return payload, key, fmt.Errorf("%w: %v", errCacheWrite, err)
	}

	s.log.Debug().
		Str("module_id", module.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return payload, key, nil
}

// PrewarmAllCaches loads every module into Redis on application startup.
func (s *ContentService) PrewarmAllCaches(ctx context.Context) error {
	modules, err := s.modules.List(ctx)
	if err != nil {
		return fmt.Errorf("list modules: %w", err)
	}

	if len(modules) == 0 {
		s.log.Info().Msg("No modules to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(modules)).Msg("Prewarming modules...")

	warmed := 0
	for i := range modules {
		if _, _, err := s.WarmModuleCache(ctx, &modules[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("module_id", modules[i].ID.String()).
				Msg("Failed to warm module, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(modules)).
		Msg("Prewarming complete")
	return nil
}

// GetModulePayload returns the candidate payload (no answer key).
// On a cache miss the payload is rebuilt from PostgreSQL and re-cached.
func (s *ContentService) GetModulePayload(ctx context.Context, moduleID uuid.UUID) (*model.ModulePayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ModulePayloadKey(moduleID.String())).Bytes()
	if err == nil {
		var payload model.ModulePayload
		if err := json.Unmarshal(data, &payload); err == nil {
			return &payload, nil
		}
		s.log.Warn().Str("module_id", moduleID.String()).Msg("Corrupt cached payload, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("module_id", moduleID.String()).Msg("Redis error reading payload, falling back to database")
	}

	payload, _, err := s.rebuild(ctx, moduleID)
	return payload, err
}

// AnswerKey returns the module's answer key. Only the session engine calls it,
// and only while finalizing an attempt.
func (s *ContentService) AnswerKey(ctx context.Context, moduleID uuid.UUID) (model.AnswerKey, error) {
	hash, err := s.rdb.HGetAll(ctx, config.CacheKey.ModuleAnswerKey(moduleID.String())).Result()
	if err == nil && len(hash) > 0 {
		key := make(model.AnswerKey, len(hash))
		for qid, opt := range hash {
			id, perr := uuid.Parse(qid)
			if perr != nil {
				continue
			}
			key[id] = model.OptionKey(opt)
		}
		return key, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("module_id", moduleID.String()).Msg("Redis error reading answer key, falling back to database")
	}

	_, key, err := s.rebuild(ctx, moduleID)
	return key, err
}

func (s *ContentService) rebuild(ctx context.Context, moduleID uuid.UUID) (*model.ModulePayload, model.AnswerKey, error) {
	module, err := s.GetModule(ctx, moduleID)
	if err != nil {
		if errors.Is(err, ErrModuleNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	payload, key, err := s.WarmModuleCache(ctx, module)
	switch {
	case err == nil:
		return payload, key, nil
	case errors.Is(err, errCacheWrite):
		s.log.Warn().Err(err).Str("module_id", moduleID.String()).Msg("Serving module from database, cache not refreshed")
		return payload, key, nil
	case errors.Is(err, ErrModuleEmpty):
		return nil, nil, err
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
}
