package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // prevent a slow query from delaying the stream
)

// LiveFeed is the part of MonitorService the proctor feed needs.
type LiveFeed interface {
	GetViolationSnapshot(ctx context.Context, moduleID uuid.UUID) (*service.ViolationSnapshot, error)
	Subscribe(ctx context.Context, moduleID uuid.UUID) (<-chan model.FeedEvent, func(), error)
	ListSessionViolations(ctx context.Context, sessionID uuid.UUID) ([]model.ProctoringEvent, error)
}

// ProctorHandler streams live session activity of a module to proctors.
type ProctorHandler struct {
	modules ModuleCatalog
	feed    LiveFeed
	log     zerolog.Logger

	keepAlive time.Duration
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(modules ModuleCatalog, feed LiveFeed, log zerolog.Logger) *ProctorHandler {
	return &ProctorHandler{
		modules:   modules,
		feed:      feed,
		log:       log.With().Str("component", "proctor_handler").Logger(),
		keepAlive: keepAliveInterval,
	}
}

// ModuleFeedSSE godoc
// GET /api/v1/proctor/modules/:id/feed
// Sends a snapshot of persisted violation counts, then every feed event
// published for the module.
func (h *ProctorHandler) ModuleFeedSSE(c *gin.Context) {
	moduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	module, err := h.modules.GetModule(reqCtx, moduleID)
	if err != nil {
		if errors.Is(err, service.ErrModuleNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrModuleNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to load module for feed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Subscribe before the snapshot so nothing published in between is lost.
	events, unsubscribe, err := h.feed.Subscribe(reqCtx, moduleID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to subscribe to module feed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, module)

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	h.log.Info().Str("module_id", moduleID.String()).Msg("Proctor attached to module feed")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("module_id", moduleID.String()).Msg("Proctor detached from module feed")
			return

		case fe, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(fe.Type), fe)
			c.Writer.Flush()

		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// SessionViolations godoc
// GET /api/v1/proctor/sessions/:id/violations
// Returns the persisted audit trail of one session.
func (h *ProctorHandler) SessionViolations(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.feed.ListSessionViolations(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to list violations")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session_id": sessionID, "violations": events})
}

func (h *ProctorHandler) sendSnapshot(c *gin.Context, parent context.Context, module *model.Module) {
	ctx, cancel := context.WithTimeout(parent, snapshotTimeout)
	defer cancel()

	snap, err := h.feed.GetViolationSnapshot(ctx, module.ID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to build feed snapshot")
		snap = &service.ViolationSnapshot{Sessions: map[uuid.UUID]int64{}}
	}

	c.SSEvent("snapshot", gin.H{
		"module": gin.H{
			"id":               module.ID,
			"title":            module.Title,
			"duration_minutes": module.DurationMinutes,
			"total_questions":  module.QuestionCount,
		},
		"violations": snap,
	})
	c.Writer.Flush()
}
