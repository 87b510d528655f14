package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/opencampus/portal-backend/internal/config"
	"github.com/opencampus/portal-backend/internal/handler"
	"github.com/opencampus/portal-backend/internal/middleware"
	"github.com/opencampus/portal-backend/internal/response"
	"github.com/opencampus/portal-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Portal *handler.PortalHandler
	Exam   *handler.ExamHandler
	WS     *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.StudentProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.Portal.ListExams)

		studentAPI.GET("/exams/:exam_id/session", handlers.Portal.LoadSession)
		studentAPI.POST("/exams/:exam_id/session/start", handlers.Portal.StartSession)
		studentAPI.PUT("/exams/:exam_id/session/answers", handlers.Portal.BufferAnswers)
		studentAPI.POST("/exams/:exam_id/session/save", handlers.Portal.SaveSession)
		studentAPI.POST("/exams/:exam_id/session/files", handlers.Portal.AttachFile)
		studentAPI.POST("/exams/:exam_id/session/submit", handlers.Portal.SubmitSession)
		studentAPI.POST("/exams/:exam_id/session/exit", handlers.Portal.ExitSession)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.GET("/exams", handlers.Exam.List)
		adminAPI.GET("/exams/:exam_id", handlers.Exam.Get)
		adminAPI.PUT("/exams/:exam_id", handlers.Exam.Update)
		adminAPI.DELETE("/exams/:exam_id", handlers.Exam.Delete)
		adminAPI.POST("/exams/:exam_id/publish", handlers.Exam.Publish)
		adminAPI.GET("/exams/:exam_id/questions", handlers.Exam.ListQuestions)
		adminAPI.PUT("/exams/:exam_id/questions", handlers.Exam.ReplaceQuestions)
		adminAPI.GET("/exams/:exam_id/submissions", handlers.Exam.SubmissionCounts)
		adminAPI.GET("/submissions/:submission_id/files/:index", handlers.Exam.AnswerFile)
	}

	return router
}
