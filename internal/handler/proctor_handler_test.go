package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	snapshot   *service.ViolationSnapshot
	events     []model.FeedEvent
	violations []model.ProctoringEvent
	subscribed bool
}

func (f *fakeFeed) GetViolationSnapshot(_ context.Context, _ uuid.UUID) (*service.ViolationSnapshot, error) {
	return f.snapshot, nil
}

// Subscribe replays the canned events and closes the channel, which ends the stream.
func (f *fakeFeed) Subscribe(_ context.Context, _ uuid.UUID) (<-chan model.FeedEvent, func(), error) {
	f.subscribed = true
	ch := make(chan model.FeedEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}, nil
}

func (f *fakeFeed) ListSessionViolations(_ context.Context, sessionID uuid.UUID) ([]model.ProctoringEvent, error) {
	var out []model.ProctoringEvent
	for _, v := range f.violations {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []model.ProctoringEvent{}
	}
	return out, nil
}

func proctorRouter(catalog ModuleCatalog, feed LiveFeed) *gin.Engine {
	h := NewProctorHandler(catalog, feed, zerolog.Nop())
	r := gin.New()
	r.GET("/modules/:id/feed", h.ModuleFeedSSE)
	r.GET("/sessions/:id/violations", h.SessionViolations)
	return r
}

func TestProctorHandler_FeedSendsSnapshotThenEvents(t *testing.T) {
	mod := model.Module{ID: uuid.New(), Title: "Go", DurationMinutes: 30, QuestionCount: 10}
	sessionID := uuid.New()
	feed := &fakeFeed{
		snapshot: &service.ViolationSnapshot{Sessions: map[uuid.UUID]int64{sessionID: 2}, Total: 2},
		events: []model.FeedEvent{
			{Type: model.FeedViolation, SessionID: sessionID, ModuleID: mod.ID, UserID: "u1", Violation: model.ViolationTabChange, Violations: 3, At: time.Now()},
		},
	}
	r := proctorRouter(&fakeCatalog{modules: []model.Module{mod}}, feed)

	w := serve(r, "/modules/"+mod.ID.String()+"/feed")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, feed.subscribed)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"), w.Header().Get("Content-Type"))

	body := w.Body.String()
	snap := strings.Index(body, "event:snapshot")
	ev := strings.Index(body, "event:"+string(model.FeedViolation))
	require.GreaterOrEqual(t, snap, 0, body)
	require.Greater(t, ev, snap, body)
	assert.Contains(t, body, `"total_violations":2`)
	assert.Contains(t, body, string(model.ViolationTabChange))
}

func TestProctorHandler_FeedUnknownModule(t *testing.T) {
	feed := &fakeFeed{}
	r := proctorRouter(&fakeCatalog{}, feed)

	w := serve(r, "/modules/"+uuid.NewString()+"/feed")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrModuleNotFound, decode(t, w).Error.Code)
	assert.False(t, feed.subscribed)
}

func TestProctorHandler_SessionViolations(t *testing.T) {
	sessionID := uuid.New()
	feed := &fakeFeed{violations: []model.ProctoringEvent{
		{SessionID: sessionID, Type: model.ViolationRightClick, OccurredAt: time.Now()},
		{SessionID: uuid.New(), Type: model.ViolationTabChange, OccurredAt: time.Now()},
	}}
	r := proctorRouter(&fakeCatalog{}, feed)

	w := serve(r, "/sessions/"+sessionID.String()+"/violations")
	require.Equal(t, http.StatusOK, w.Code)
	body := string(decode(t, w).Data)
	assert.Contains(t, body, string(model.ViolationRightClick))
	assert.NotContains(t, body, string(model.ViolationTabChange))

	w = serve(r, "/sessions/nope/violations")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
