package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/middleware"
	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/response"
	"github.com/opencampus/portal-backend/internal/service"
	"github.com/opencampus/portal-backend/internal/validator"
)

// AuthHandler handles login and logout for students and admins.
type AuthHandler struct {
	studentService *service.StudentService
	adminService   *service.AdminService
	log            zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(studentService *service.StudentService, adminService *service.AdminService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		studentService: studentService,
		adminService:   adminService,
		log:            log.With().Str("component", "auth_handler").Logger(),
	}
}

// StudentLogin handles POST /api/v1/auth/student/login.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, student, err := h.studentService.Login(c.Request.Context(), &req)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	case errors.Is(err, service.ErrSessionAlreadyActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionActive)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Student login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"student": student,
	})
}

// StudentLogout handles POST /api/v1/student/logout.
func (h *AuthHandler) StudentLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if err := h.studentService.Logout(c.Request.Context(), claims.UserID); err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Logout failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "logged_out"})
}

// StudentProfile handles GET /api/v1/auth/student/me.
func (h *AuthHandler) StudentProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	student, err := h.studentService.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, student)
}

// AdminLogin handles POST /api/v1/auth/admin/login.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, admin, err := h.adminService.Login(c.Request.Context(), &req)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Admin login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"admin": admin,
	})
}
