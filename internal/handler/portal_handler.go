package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/middleware"
	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/response"
	"github.com/opencampus/portal-backend/internal/service"
	"github.com/opencampus/portal-backend/internal/session"
	"github.com/opencampus/portal-backend/internal/validator"
)

// PortalHandler serves the student exam schedule and the exam-session
// endpoints. Session state lives in the registry; every endpoint resolves
// the controller first and maps session errors onto API error codes.
type PortalHandler struct {
	examService  *service.ExamService
	registry     *session.Registry
	maxFileBytes int64
	log          zerolog.Logger
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(examService *service.ExamService, registry *session.Registry, maxFileBytes int64, log zerolog.Logger) *PortalHandler {
	return &PortalHandler{
		examService:  examService,
		registry:     registry,
		maxFileBytes: maxFileBytes,
		log:          log.With().Str("component", "portal_handler").Logger(),
	}
}

// ListExams handles GET /api/v1/student/exams.
func (h *PortalHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)

	views, err := h.examService.ListForStudent(c.Request.Context(), claims.UserID, time.Now())
	if err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Failed to list exams")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, views)
}

// LoadSession handles GET /api/v1/student/exams/:exam_id/session. It creates
// or resumes the attempt controller and returns the full session view.
func (h *PortalHandler) LoadSession(c *gin.Context) {
	ctrl, ok := h.resolveController(c)
	if !ok {
		return
	}

	answers, text := ctrl.Answers()
	response.Success(c, http.StatusOK, gin.H{
		"session":     ctrl.Snapshot(),
		"exam":        ctrl.Exam(),
		"questions":   ctrl.Questions(),
		"answers":     answers,
		"answer_text": text,
		"submission":  ctrl.Submission(),
	})
}

// StartSession handles POST /api/v1/student/exams/:exam_id/session/start.
func (h *PortalHandler) StartSession(c *gin.Context) {
	ctrl, ok := h.resolveController(c)
	if !ok {
		return
	}

	if err := ctrl.ConfirmStart(c.Request.Context()); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// BufferAnswers handles PUT /api/v1/student/exams/:exam_id/session/answers.
// Answers land in the in-memory buffer; persistence happens on the autosave
// tick or an explicit save.
func (h *PortalHandler) BufferAnswers(c *gin.Context) {
	ctrl, ok := h.resolveController(c)
	if !ok {
		return
	}

	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	for qid, ans := range req.Answers {
		if err := ctrl.SetAnswer(qid, ans); err != nil {
			h.failSession(c, err)
			return
		}
	}
	if req.AnswerText != nil {
		if err := ctrl.SetAnswerText(*req.AnswerText); err != nil {
			h.failSession(c, err)
			return
		}
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// SaveSession handles POST /api/v1/student/exams/:exam_id/session/save.
func (h *PortalHandler) SaveSession(c *gin.Context) {
	ctrl, ok := h.resolveController(c)
	if !ok {
		return
	}

	if err := ctrl.SaveProgress(c.Request.Context()); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// AttachFile handles POST /api/v1/student/exams/:exam_id/session/files.
// The file stays local to the attempt until submit uploads it.
func (h *PortalHandler) AttachFile(c *gin.Context) {
	ctrl, ok := h.resolveController(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	if fh.Size > h.maxFileBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.log.Error().Err(err).Str("file", fh.Filename).Msg("Failed to read upload")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	err = ctrl.AttachFile(session.AnswerFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// SubmitSession handles POST /api/v1/student/exams/:exam_id/session/submit.
func (h *PortalHandler) SubmitSession(c *gin.Context) {
	ctrl, ok := h.resolveController(c)
	if !ok {
		return
	}

	err := ctrl.Submit(c.Request.Context())

	var pue *session.PartialUploadError
	if errors.As(err, &pue) {
		// The submission is sealed; report the upload failures alongside it.
		response.Success(c, http.StatusOK, gin.H{
			"session": ctrl.Snapshot(),
			"warning": response.GetMessage(response.ErrUploadPartial),
		})
		return
	}
	if err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// ExitSession handles POST /api/v1/student/exams/:exam_id/session/exit.
func (h *PortalHandler) ExitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctrl, ok := h.registry.Get(examID, claims.UserID)
	if !ok {
		// Nothing live; exiting an attempt that never loaded is a no-op.
		response.Success(c, http.StatusOK, gin.H{"status": "exited"})
		return
	}

	// Exit always lands in a terminal phase, so the registry evicts the
	// controller through its own subscription; no explicit release here.
	if err := ctrl.Exit(c.Request.Context()); err != nil {
		h.failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "exited", "session": ctrl.Snapshot()})
}

// resolveController parses the exam ID and loads the attempt controller,
// writing the error response itself on failure.
func (h *PortalHandler) resolveController(c *gin.Context) (*session.Controller, bool) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.registry.Load(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failSession(c, err)
		return nil, false
	}
	return ctrl, true
}

// failSession maps session errors onto the API error vocabulary.
func (h *PortalHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, session.ErrExamNotOnline):
		response.Fail(c, http.StatusConflict, response.ErrExamNotOnline)
	case errors.Is(err, session.ErrWindowNotOpen):
		response.Fail(c, http.StatusConflict, response.ErrWindowNotOpen)
	case errors.Is(err, session.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, session.ErrTooManyFiles):
		response.Fail(c, http.StatusConflict, response.ErrTooManyFiles)
	case errors.Is(err, session.ErrInvalidPhase):
		response.Fail(c, http.StatusConflict, response.ErrInvalidPhase)
	default:
		var pe *session.PersistError
		if errors.As(err, &pe) {
			h.log.Error().Err(err).Str("op", pe.Op).Msg("Session persistence failed")
			if pe.Op == "finalize submission" {
				response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
			} else {
				response.Fail(c, http.StatusBadGateway, response.ErrSaveFailed)
			}
			return
		}
		h.log.Error().Err(err).Msg("Unexpected session error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
