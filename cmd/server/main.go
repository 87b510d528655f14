package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/config"
	"github.com/opencampus/portal-backend/internal/database"
	"github.com/opencampus/portal-backend/internal/gateway"
	"github.com/opencampus/portal-backend/internal/handler"
	"github.com/opencampus/portal-backend/internal/logger"
	"github.com/opencampus/portal-backend/internal/repository"
	"github.com/opencampus/portal-backend/internal/router"
	"github.com/opencampus/portal-backend/internal/service"
	"github.com/opencampus/portal-backend/internal/session"
	"github.com/opencampus/portal-backend/internal/storage"
	"github.com/opencampus/portal-backend/internal/validator"
	"github.com/opencampus/portal-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting OpenCampus Portal Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to S3 ─────────────────────────────────────────────────
	bucket, err := storage.NewBucket(ctx, cfg.S3Region, cfg.S3Bucket, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 bucket")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	subRepo := repository.NewSubmissionRepository(pool)

	// ─── Initialize Session Core ───────────────────────────────────────
	store := gateway.NewStore(examRepo, subRepo, questionRepo, rdb, bucket, log)
	registry := session.NewRegistry(store, session.SystemClock, log, session.Options{
		TickInterval:     cfg.SessionTickInterval,
		AutosaveInterval: cfg.SessionAutosaveInterval,
		MaxAnswerFiles:   cfg.MaxAnswerFiles,
	})

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	studentService := service.NewStudentService(studentRepo, authService, log)
	adminService := service.NewAdminService(adminRepo, authService, log)
	examService := service.NewExamService(examRepo, subRepo, questionRepo, bucket, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(studentService, adminService, log),
		Portal: handler.NewPortalHandler(examService, registry, cfg.MaxAnswerFileBytes, log),
		Exam:   handler.NewExamHandler(examService, log),
		WS:     handler.NewWSHandler(registry, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(subRepo, rdb, log)
	deadlineWorker := worker.NewDeadlineWorker(subRepo, examRepo, cfg.DeadlineSweepInterval, cfg.DeadlineGrace, log)

	go autosaveWorker.Start(workerCtx)
	go deadlineWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Release live exam sessions so their timer loops stop cleanly.
	// Started submissions stay started; students resume after restart and
	// the deadline sweep covers attempts that never come back.
	registry.CloseAll()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
