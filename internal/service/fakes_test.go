package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeModules struct {
	mu      sync.Mutex
	modules map[uuid.UUID]model.Module
	err     error
	gets    int
}

func (f *fakeModules) GetByID(_ context.Context, id uuid.UUID) (*model.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.modules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (f *fakeModules) List(_ context.Context) ([]model.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Module, 0, len(f.modules))
	for _, m := range f.modules {
		out = append(out, m)
	}
	return out, nil
}

type fakeQuestions struct {
	mu        sync.Mutex
	questions map[uuid.UUID][]model.Question
	calls     int
}

func (f *fakeQuestions) ListByModule(_ context.Context, moduleID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]model.Question(nil), f.questions[moduleID]...), nil
}

func (f *fakeQuestions) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAttempts struct {
	mu         sync.Mutex
	attempts   map[uuid.UUID]model.Attempt
	lastFilter model.AttemptFilter
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{attempts: map[uuid.UUID]model.Attempt{}}
}

func (f *fakeAttempts) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.New()
	a.RecordedAt = time.Now().UTC()
	f.attempts[a.ID] = *a.Clone()
	return nil
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (f *fakeAttempts) ListByUser(_ context.Context, userID string, filter model.AttemptFilter) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.UserID != userID {
			continue
		}
		if filter.ModuleID != nil && a.ModuleID != *filter.ModuleID {
			continue
		}
		out = append(out, *a.Clone())
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// seedModule registers a module with n questions whose answers cycle a..d.
func seedModule(mods *fakeModules, qs *fakeQuestions, n, minutes int) model.Module {
	m := model.Module{
		ID:              uuid.New(),
		Title:           "Kimia Organik",
		DurationMinutes: minutes,
		CreatedAt:       time.Now().UTC(),
	}
	if mods.modules == nil {
		mods.modules = map[uuid.UUID]model.Module{}
	}
	if qs.questions == nil {
		qs.questions = map[uuid.UUID][]model.Question{}
	}
	mods.modules[m.ID] = m
	for i := 0; i < n; i++ {
		qs.questions[m.ID] = append(qs.questions[m.ID], model.Question{
			ID:            uuid.New(),
			ModuleID:      m.ID,
			Number:        i + 1,
			Prompt:        fmt.Sprintf("Q%d", i+1),
			Options:       model.Options{A: "a", B: "b", C: "c", D: "d"},
			CorrectOption: model.OptionKeys[i%4],
		})
	}
	return m
}
