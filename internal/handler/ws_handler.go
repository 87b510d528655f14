package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/middleware"
	"github.com/opencampus/portal-backend/internal/response"
	"github.com/opencampus/portal-backend/internal/session"
	ws "github.com/opencampus/portal-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// WSHandler streams live exam-session state over WebSocket and accepts
// in-exam actions on the same connection.
type WSHandler struct {
	registry *session.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *session.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Streams a session snapshot on every timer tick and phase transition, and
// handles set_answer, set_text, save, submit and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctrl, err := h.registry.Load(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		ws.WriteError(conn, sessionErrorMessage(err))
		return
	}

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	// All conn writes funnel through one channel so the snapshot fan-out and
	// action replies never interleave on the wire.
	outbound := make(chan interface{}, 16)
	done := make(chan struct{})

	cancel := ctrl.Subscribe(func(s session.Snapshot) {
		select {
		case outbound <- ws.SnapshotResponse{Event: ws.EventSnapshot, Snapshot: s}:
		case <-done:
		default:
			// A slow reader drops intermediate snapshots; the next tick
			// carries fresher state anyway.
		}
	})
	defer cancel()

	go func() {
		for {
			select {
			case <-done:
				return
			case msg := <-outbound:
				if err := ws.WriteTyped(conn, msg); err != nil {
					wsLog.Debug().Err(err).Msg("Write failed, closing stream")
					conn.Close()
					return
				}
			}
		}
	}()

	// Send the current state immediately so the client renders without
	// waiting for the first tick.
	outbound <- ws.SnapshotResponse{Event: ws.EventSnapshot, Snapshot: ctrl.Snapshot()}

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"}
			continue
		}

		h.handleAction(ctrl, outbound, wsLog, envelope.Action, raw)
	}

	close(done)
}

func (h *WSHandler) handleAction(ctrl *session.Controller, outbound chan<- interface{}, wsLog zerolog.Logger, action ws.Action, raw []byte) {
	ctx := context.Background()

	switch action {
	case ws.ActionSetAnswer:
		var req ws.SetAnswerRequest
		if err := json.Unmarshal(raw, &req); err != nil || req.QID == "" {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: "q_id is required"}
			return
		}
		if err := ctrl.SetAnswer(req.QID, req.Answer); err != nil {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: sessionErrorMessage(err)}
		}

	case ws.ActionSetText:
		var req ws.SetTextRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"}
			return
		}
		if err := ctrl.SetAnswerText(req.Text); err != nil {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: sessionErrorMessage(err)}
		}

	case ws.ActionSave:
		if err := ctrl.SaveProgress(ctx); err != nil {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: sessionErrorMessage(err)}
			return
		}
		outbound <- ws.SavedResponse{Event: ws.EventSaved, Status: "saved"}

	case ws.ActionSubmit:
		err := ctrl.Submit(ctx)
		var pue *session.PartialUploadError
		if errors.As(err, &pue) {
			outbound <- ws.SubmittedResponse{
				Event:   ws.EventSubmitted,
				Status:  "submitted",
				Warning: response.GetMessage(response.ErrUploadPartial),
			}
			return
		}
		if err != nil {
			outbound <- ws.ErrorResponse{Event: ws.EventError, Error: sessionErrorMessage(err)}
			return
		}
		outbound <- ws.SubmittedResponse{Event: ws.EventSubmitted, Status: "submitted"}

	case ws.ActionPing:
		outbound <- ws.PongResponse{Event: ws.EventPong}

	default:
		wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
		outbound <- ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(action)}
	}
}

// sessionErrorMessage translates session errors into the client-facing
// message vocabulary shared with the REST surface.
func sessionErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrExamNotFound):
		return response.GetMessage(response.ErrNotFound)
	case errors.Is(err, session.ErrExamNotOnline):
		return response.GetMessage(response.ErrExamNotOnline)
	case errors.Is(err, session.ErrWindowNotOpen):
		return response.GetMessage(response.ErrWindowNotOpen)
	case errors.Is(err, session.ErrAlreadySubmitted):
		return response.GetMessage(response.ErrAlreadySubmitted)
	case errors.Is(err, session.ErrTooManyFiles):
		return response.GetMessage(response.ErrTooManyFiles)
	case errors.Is(err, session.ErrInvalidPhase):
		return response.GetMessage(response.ErrInvalidPhase)
	default:
		var pe *session.PersistError
		if errors.As(err, &pe) {
			return response.GetMessage(response.ErrSaveFailed)
		}
		return response.GetMessage(response.ErrInternal)
	}
}
