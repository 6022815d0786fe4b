package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/ledger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const commandTimeout = 5 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionOpener is the part of SessionService the stream needs.
type SessionOpener interface {
	Open(ctx context.Context, userID string, moduleID uuid.UUID, host proctor.Host, obs session.Observer) (*session.Controller, error)
}

// SessionHandler runs a candidate's exam session over a WebSocket.
type SessionHandler struct {
	sessions SessionOpener
	log      zerolog.Logger
	upgrader websocket.Upgrader
	outbox   int
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionOpener, log zerolog.Logger, allowedOrigins []string) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		outbox:   ws.DefaultOutbox,
	}
}

// SessionStream godoc
// WS /ws/v1/candidate/modules/:module_id/session
// Opens a session and relays commands, browser signals and engine events.
// Closing the socket closes the session.
func (h *SessionHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	moduleID, err := uuid.Parse(c.Param("module_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().
		Str("user_id", claims.UserID).
		Str("module_id", moduleID.String()).
		Logger()

	conn := ws.NewConn(raw, wsLog, h.outbox)
	defer conn.Close()

	// The request context is detached from a hijacked connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := ws.NewHost(conn)
	ctrl, err := h.sessions.Open(ctx, claims.UserID, moduleID, host, session.ObserverFunc(func(ev session.Event) {
		forwardEvent(conn, ev)
	}))
	if err != nil {
		code := errorCode(err)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Failed to open session")
		}
		conn.SendError(string(code), response.GetMessage(code))
		return
	}
	defer ctrl.Close()

	wsLog = wsLog.With().Str("session_id", ctrl.ID().String()).Logger()
	wsLog.Info().Msg("Candidate connected")

	h.replyState(ctx, conn, ctrl)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		action, req, err := ws.Decode(data)
		if err != nil {
			var de *ws.DecodeError
			code := response.ErrInvalidPayload
			if errors.As(err, &de) && de.Fields["action"] != "" {
				code = response.ErrUnknownAction
			}
			conn.SendError(string(code), err.Error())
			continue
		}

		h.dispatch(ctx, conn, host, ctrl, action, req)
	}

	wsLog.Info().Msg("Candidate disconnected, closing session")
}

func (h *SessionHandler) dispatch(ctx context.Context, conn *ws.Conn, host *ws.Host, ctrl *session.Controller, action ws.Action, req any) {
	switch action {
	case ws.ActionPing:
		conn.Send(ws.PongResponse{Event: ws.EventPong})

	case ws.ActionState:
		h.replyState(ctx, conn, ctrl)

	case ws.ActionStart:
		// The state event is pushed by the controller on success.
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if _, err := ctrl.Start(cctx); err != nil {
			sendErr(conn, err)
		}

	case ws.ActionSelect:
		sel := req.(*ws.SelectRequest)
		qid, _ := uuid.Parse(sel.QID)
		key, _ := model.ParseOptionKey(sel.Answer)
		h.replyView(ctx, conn, func(cctx context.Context) (session.View, error) {
			return ctrl.Select(cctx, qid, key)
		})

	case ws.ActionNavigate:
		nav := req.(*ws.NavigateRequest)
		h.replyView(ctx, conn, func(cctx context.Context) (session.View, error) {
			switch nav.To {
			case ws.NavigateNext:
				return ctrl.Next(cctx)
			case ws.NavigatePrevious:
				return ctrl.Previous(cctx)
			default:
				return ctrl.GoTo(cctx, nav.Index)
			}
		})

	case ws.ActionSubmit:
		go h.finalize(ctx, conn, ctrl, ctrl.Submit, false)

	case ws.ActionRetry:
		go h.finalize(ctx, conn, ctrl, ctrl.Retry, true)

	case ws.ActionSignal:
		// Signals outside an active session have no listener and are dropped.
		host.Dispatch(req.(*ws.SignalRequest).Signal)

	case ws.ActionFullscreenResult:
		fr := req.(*ws.FullscreenResultRequest)
		host.ResolveFullscreen(fr.Granted, fr.Reason)
	}
}

// finalize runs a submit or retry off the read loop. Fresh outcomes and
// failures reach the client through the observer; only answers that produce
// no event are sent here: a finalized session, or a submit on a failed one.
// A retry always dispatches and so always produces an event.
func (h *SessionHandler) finalize(ctx context.Context, conn *ws.Conn, ctrl *session.Controller, fn func(context.Context) (*session.Outcome, error), retry bool) {
	before, err := ctrl.View(ctx)
	if err != nil {
		sendErr(conn, err)
		return
	}

	outcome, err := fn(ctx)
	switch {
	case err == nil:
		if before.State == session.StateFinalized {
			conn.Send(ws.NewGradedResponse(outcome))
		}
	case errors.Is(err, session.ErrSubmitFailed):
		if before.SubmitFailed && !retry {
			conn.Send(ws.SubmitFailedResponse{Event: ws.EventSubmitFailed, Retryable: true, Error: err.Error()})
		}
	case errors.Is(err, context.Canceled):
	default:
		sendErr(conn, err)
	}
}

func (h *SessionHandler) replyState(ctx context.Context, conn *ws.Conn, ctrl *session.Controller) {
	h.replyView(ctx, conn, ctrl.View)
}

func (h *SessionHandler) replyView(ctx context.Context, conn *ws.Conn, fn func(context.Context) (session.View, error)) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	v, err := fn(cctx)
	if err != nil {
		sendErr(conn, err)
		return
	}
	conn.Send(ws.StateResponse{Event: ws.EventState, View: v})
}

// forwardEvent maps controller events onto wire events. It runs on the
// controller goroutine and never blocks.
func forwardEvent(conn *ws.Conn, ev session.Event) {
	switch ev.Kind {
	case session.EventStateChanged:
		if ev.View != nil {
			conn.Send(ws.StateResponse{Event: ws.EventState, View: *ev.View})
		}
	case session.EventTick:
		conn.Send(ws.TickResponse{Event: ws.EventTick, Remaining: ev.Remaining})
	case session.EventViolation:
		if ev.Violation != nil {
			conn.Send(ws.ViolationResponse{
				Event:     ws.EventViolation,
				Type:      ev.Violation.Type,
				Timestamp: ev.Violation.Timestamp,
				Count:     ev.Violations,
			})
		}
	case session.EventSuppressed:
		if ev.Signal != nil {
			conn.Send(ws.SuppressedResponse{
				Event:   ws.EventSuppressed,
				Kind:    ev.Signal.Kind,
				Key:     ev.Signal.Key,
				KeyCode: ev.Signal.KeyCode,
			})
		}
	case session.EventFullscreenDenied:
		reason := "full-screen request denied"
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		conn.Send(ws.FullscreenDeniedResponse{Event: ws.EventFullscreenDenied, Reason: reason})
	case session.EventFinalized:
		if ev.Outcome != nil {
			conn.Send(ws.NewGradedResponse(ev.Outcome))
		}
	case session.EventSubmitFailed:
		msg := response.GetMessage(response.ErrSubmitFailed)
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		conn.Send(ws.SubmitFailedResponse{Event: ws.EventSubmitFailed, Retryable: true, Error: msg})
	}
}

func sendErr(conn *ws.Conn, err error) {
	code := errorCode(err)
	conn.SendError(string(code), response.GetMessage(code))
}

// errorCode maps engine and service errors onto API codes.
func errorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrModuleNotFound):
		return response.ErrModuleNotFound
	case errors.Is(err, session.ErrNoQuestions):
		return response.ErrNoQuestions
	case errors.Is(err, service.ErrSessionAlreadyOpen):
		return response.ErrSessionAlreadyOpen
	case errors.Is(err, service.ErrContentUnavailable):
		return response.ErrContentUnavailable
	case errors.Is(err, session.ErrAlreadyStarted):
		return response.ErrAlreadyStarted
	case errors.Is(err, session.ErrNotActive):
		return response.ErrNotActive
	case errors.Is(err, session.ErrNothingToRetry):
		return response.ErrNothingToRetry
	case errors.Is(err, session.ErrSubmitFailed):
		return response.ErrSubmitFailed
	case errors.Is(err, session.ErrClosed):
		return response.ErrSessionClosed
	case errors.Is(err, ledger.ErrUnknownQuestion):
		return response.ErrUnknownQuestion
	case errors.Is(err, ledger.ErrInvalidOption):
		return response.ErrValidation
	case errors.Is(err, service.ErrAttemptNotFound):
		return response.ErrAttemptNotFound
	default:
		return response.ErrInternal
	}
}
