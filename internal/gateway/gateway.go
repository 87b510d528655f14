// Package gateway backs the session core with PostgreSQL, Redis and S3.
// Autosaved answers are written through to Redis and queued for asynchronous
// persistence; submission lifecycle writes go straight to the database.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/config"
	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/repository"
	"github.com/opencampus/portal-backend/internal/session"
	"github.com/opencampus/portal-backend/internal/storage"
)

// cached answers survive this long past the last save; long enough to cover
// any plausible exam window plus the deadline sweep.
const answerCacheTTL = 24 * time.Hour

// Store implements session.Gateway.
type Store struct {
	examRepo     *repository.ExamRepository
	subRepo      *repository.SubmissionRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	bucket       *storage.Bucket
	log          zerolog.Logger
}

// NewStore creates the persistence gateway used by exam sessions.
func NewStore(
	examRepo *repository.ExamRepository,
	subRepo *repository.SubmissionRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	bucket *storage.Bucket,
	log zerolog.Logger,
) *Store {
	return &Store{
		examRepo:     examRepo,
		subRepo:      subRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		bucket:       bucket,
		log:          log.With().Str("component", "session_gateway").Logger(),
	}
}

// FetchExam returns a published exam. Drafts and missing IDs both map to
// session.ErrExamNotFound so students cannot probe unpublished exams.
func (s *Store) FetchExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch exam %s: %w", examID, err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, session.ErrExamNotFound
	}
	return exam, nil
}

// FetchSubmission loads the attempt's submission and overlays any cached
// answers that have not reached the database yet. A cache failure degrades
// to the database copy.
func (s *Store) FetchSubmission(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error) {
	sub, err := s.subRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}
	if sub == nil || sub.Sealed() {
		return sub, nil
	}

	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.SubmissionAnswersKey(examID.String(), studentID)).Result()
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Msg("Answer cache unavailable, serving database copy")
		return sub, nil
	}
	for q, v := range cached {
		sub.Answers[q] = v
	}

	text, err := s.rdb.Get(ctx, config.CacheKey.SubmissionTextKey(examID.String(), studentID)).Result()
	if err == nil {
		sub.AnswerText = &text
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Text cache unavailable")
	}
	return sub, nil
}

// CreateSubmission starts the attempt, tolerating a concurrent start.
func (s *Store) CreateSubmission(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.Submission, error) {
	sub, err := s.subRepo.Create(ctx, examID, studentID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	return sub, nil
}

// UpdateSubmission routes the write by intent. Plain saves go through the
// cache and the persist queue so the exam keeps running when the database
// stalls; sealing writes go straight to the database because the submit
// receipt must be durable before the student sees it.
func (s *Store) UpdateSubmission(ctx context.Context, submissionID uuid.UUID, upd session.SubmissionUpdate) (*model.Submission, error) {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission %s: %w", submissionID, err)
	}

	if upd.Status != nil && *upd.Status == model.SubmissionSubmitted {
		return s.finalize(ctx, sub, upd)
	}
	if sub.Sealed() {
		return sub, session.ErrAlreadySubmitted
	}
	return s.save(ctx, sub, upd)
}

func (s *Store) save(ctx context.Context, sub *model.Submission, upd session.SubmissionUpdate) (*model.Submission, error) {
	answersKey := config.CacheKey.SubmissionAnswersKey(sub.ExamID.String(), sub.StudentID)

	if len(upd.Answers) > 0 {
		fields := make(map[string]any, len(upd.Answers))
		for q, v := range upd.Answers {
			fields[q] = v
		}
		pipe := s.rdb.Pipeline()
		pipe.HSet(ctx, answersKey, fields)
		pipe.Expire(ctx, answersKey, answerCacheTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("cache answers: %w", err)
		}
	}
	if upd.AnswerText != nil {
		textKey := config.CacheKey.SubmissionTextKey(sub.ExamID.String(), sub.StudentID)
		if err := s.rdb.Set(ctx, textKey, *upd.AnswerText, answerCacheTTL).Err(); err != nil {
			return nil, fmt.Errorf("cache answer text: %w", err)
		}
	}

	applyUpdate(sub, upd)

	job := model.AnswerPersistJob{
		SubmissionID: sub.ID,
		Answers:      sub.Answers,
		AnswerText:   sub.AnswerText,
		AnswerFiles:  sub.AnswerFiles,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal persist job: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		return nil, fmt.Errorf("enqueue persist job: %w", err)
	}

	sub.UpdatedAt = time.Now()
	return sub, nil
}

func (s *Store) finalize(ctx context.Context, sub *model.Submission, upd session.SubmissionUpdate) (*model.Submission, error) {
	applyUpdate(sub, upd)

	submittedAt := time.Now()
	if upd.SubmittedAt != nil {
		submittedAt = *upd.SubmittedAt
	}

	sealed, err := s.subRepo.Finalize(ctx, sub.ID, sub.Answers, sub.AnswerText, sub.AnswerFiles, submittedAt)
	if errors.Is(err, repository.ErrSubmissionSealed) {
		stored, ferr := s.subRepo.GetByID(ctx, sub.ID)
		if ferr != nil {
			return nil, fmt.Errorf("fetch sealed submission: %w", ferr)
		}
		s.dropCache(ctx, stored)
		return stored, session.ErrAlreadySubmitted
	}
	if err != nil {
		return nil, fmt.Errorf("finalize submission: %w", err)
	}

	s.dropCache(ctx, sealed)
	return sealed, nil
}

// dropCache clears the attempt's cached answers after sealing. Best effort:
// a leftover key expires on its own and the persist worker skips sealed rows.
func (s *Store) dropCache(ctx context.Context, sub *model.Submission) {
	err := s.rdb.Del(ctx,
		config.CacheKey.SubmissionAnswersKey(sub.ExamID.String(), sub.StudentID),
		config.CacheKey.SubmissionTextKey(sub.ExamID.String(), sub.StudentID),
	).Err()
	if err != nil {
		s.log.Warn().Err(err).
			Str("submission_id", sub.ID.String()).
			Msg("Failed to clear answer cache after submit")
	}
}

func applyUpdate(sub *model.Submission, upd session.SubmissionUpdate) {
	if upd.Answers != nil {
		sub.Answers = upd.Answers
	}
	if upd.AnswerText != nil {
		sub.AnswerText = upd.AnswerText
	}
	if upd.AnswerFiles != nil {
		sub.AnswerFiles = upd.AnswerFiles
	}
}

// UploadAnswerFile stores one answer file under a key namespaced by attempt.
func (s *Store) UploadAnswerFile(ctx context.Context, examID uuid.UUID, studentID int, file session.AnswerFile) (string, error) {
	key := fmt.Sprintf("submissions/%s/%d/%s%s",
		examID, studentID, uuid.New(), filepath.Ext(file.Name))
	url, err := s.bucket.Upload(ctx, key, file.Data, file.ContentType)
	if err != nil {
		return "", fmt.Errorf("upload answer file %q: %w", file.Name, err)
	}
	return url, nil
}

// FetchQuestions lists the exam's question set in display order.
func (s *Store) FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("fetch questions for exam %s: %w", examID, err)
	}
	return questions, nil
}
