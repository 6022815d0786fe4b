package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ModuleCatalog lists modules for candidates.
type ModuleCatalog interface {
	ListModules(ctx context.Context) ([]model.Module, error)
	GetModule(ctx context.Context, id uuid.UUID) (*model.Module, error)
}

// AttemptHistory reads a candidate's finalized attempts.
type AttemptHistory interface {
	ListByUser(ctx context.Context, userID string, filter model.AttemptFilter) ([]model.Attempt, error)
	GetForUser(ctx context.Context, id uuid.UUID, userID string) (*model.Attempt, error)
}

// CandidateHandler serves the module catalogue and attempt history.
type CandidateHandler struct {
	modules  ModuleCatalog
	attempts AttemptHistory
	log      zerolog.Logger
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(modules ModuleCatalog, attempts AttemptHistory, log zerolog.Logger) *CandidateHandler {
	return &CandidateHandler{
		modules:  modules,
		attempts: attempts,
		log:      log.With().Str("component", "candidate_handler").Logger(),
	}
}

// ListModules godoc
// GET /api/v1/candidate/modules
func (h *CandidateHandler) ListModules(c *gin.Context) {
	modules, err := h.modules.ListModules(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list modules")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if modules == nil {
		modules = []model.Module{}
	}
	response.Success(c, http.StatusOK, gin.H{"modules": modules})
}

// GetModule godoc
// GET /api/v1/candidate/modules/:id
// Returns the module's instructions; questions are only served inside a session.
func (h *CandidateHandler) GetModule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	module, err := h.modules.GetModule(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrModuleNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrModuleNotFound)
			return
		}
		h.log.Error().Err(err).Str("module_id", id.String()).Msg("Failed to get module")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, module)
}

type attemptQuery struct {
	ModuleID string `form:"module_id" json:"module_id" binding:"omitempty,uuid"`
	Limit    int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=100"`
}

// ListAttempts godoc
// GET /api/v1/candidate/attempts?module_id=&limit=
func (h *CandidateHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q attemptQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	filter := model.AttemptFilter{Limit: q.Limit}
	if q.ModuleID != "" {
		id, err := uuid.Parse(q.ModuleID)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"module_id": "module_id must be a valid UUID"})
			return
		}
		filter.ModuleID = &id
	}

	attempts, err := h.attempts.ListByUser(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to list attempts")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetAttempt godoc
// GET /api/v1/candidate/attempts/:id
func (h *CandidateHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.GetForUser(c.Request.Context(), id, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		h.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to get attempt")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}
