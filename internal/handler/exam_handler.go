package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/middleware"
	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/response"
	"github.com/opencampus/portal-backend/internal/service"
	"github.com/opencampus/portal-backend/internal/validator"
)

// ExamHandler serves the exam-office scheduling API.
type ExamHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// Create handles POST /api/v1/admin/exams.
func (h *ExamHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create exam")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, exam)
}

// List handles GET /api/v1/admin/exams.
func (h *ExamHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	exams, total, err := h.examService.List(c.Request.Context(), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exams")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, exams, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// Get handles GET /api/v1/admin/exams/:exam_id.
func (h *ExamHandler) Get(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// Update handles PUT /api/v1/admin/exams/:exam_id.
func (h *ExamHandler) Update(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, &req)
	if err != nil {
		h.failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// Publish handles POST /api/v1/admin/exams/:exam_id/publish.
func (h *ExamHandler) Publish(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), examID)
	if err != nil {
		h.failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// Delete handles DELETE /api/v1/admin/exams/:exam_id.
func (h *ExamHandler) Delete(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID); err != nil {
		h.failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "deleted"})
}

// ReplaceQuestions handles PUT /api/v1/admin/exams/:exam_id/questions.
func (h *ExamHandler) ReplaceQuestions(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.ReplaceQuestions(c.Request.Context(), examID, &req); err != nil {
		h.failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "replaced", "count": len(req.Questions)})
}

// ListQuestions handles GET /api/v1/admin/exams/:exam_id/questions.
func (h *ExamHandler) ListQuestions(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	questions, err := h.examService.Questions(c.Request.Context(), examID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list questions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, questions)
}

// SubmissionCounts handles GET /api/v1/admin/exams/:exam_id/submissions.
func (h *ExamHandler) SubmissionCounts(c *gin.Context) {
	examID, ok := h.parseExamID(c)
	if !ok {
		return
	}

	counts, err := h.examService.SubmissionCounts(c.Request.Context(), examID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count submissions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, counts)
}

// AnswerFile handles GET /api/v1/admin/submissions/:submission_id/files/:index.
// Streams one uploaded answer file for review.
func (h *ExamHandler) AnswerFile(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("submission_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	content, name, err := h.examService.AnswerFile(c.Request.Context(), subID, index)
	if err != nil {
		if errors.Is(err, service.ErrAnswerFileNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("submission_id", subID.String()).Msg("Failed to fetch answer file")
		response.Fail(c, http.StatusBadGateway, response.ErrInternal)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", content)
}

func (h *ExamHandler) parseExamID(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

func (h *ExamHandler) failExam(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotEditable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotEditable)
	case errors.Is(err, service.ErrExamNotPublishable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublishable)
	default:
		h.log.Error().Err(err).Msg("Exam operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
