package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/repository"
)

// sweepBatchSize bounds one sweep pass so a backlog cannot hold the worker
// in a single long transaction burst.
const sweepBatchSize = 200

// DeadlineWorker periodically finalizes attempts that outlived their exam
// window. A live controller auto-submits on its own tick; this sweep covers
// attempts whose process died or whose student never came back.
type DeadlineWorker struct {
	subRepo  *repository.SubmissionRepository
	examRepo *repository.ExamRepository
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker. The grace period keeps the
// sweep from racing controllers that are mid auto-submit.
func NewDeadlineWorker(subRepo *repository.SubmissionRepository, examRepo *repository.ExamRepository, interval, grace time.Duration, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		subRepo:  subRepo,
		examRepo: examRepo,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the periodic sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.grace)
	overdue, err := w.subRepo.ListOverdue(ctx, cutoff, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list overdue submissions")
		return
	}
	if len(overdue) == 0 {
		return
	}

	sealed := 0
	for _, sub := range overdue {
		exam, err := w.examRepo.GetByID(ctx, sub.ExamID)
		if err != nil {
			w.log.Error().Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("Failed to load exam for overdue submission")
			continue
		}

		// Record the close of the window, not the sweep time, as submit time.
		err = w.subRepo.FinalizeOverdue(ctx, sub.ID, exam.EndAt)
		if errors.Is(err, repository.ErrSubmissionSealed) {
			continue
		}
		if err != nil {
			w.log.Error().Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("Failed to finalize overdue submission")
			continue
		}
		sealed++
	}

	if sealed > 0 {
		w.log.Info().Int("count", sealed).Msg("Finalized overdue submissions")
	}
}
