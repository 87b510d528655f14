package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/repository"
)

// Exam service errors.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotEditable    = errors.New("published exams cannot be edited")
	ErrExamNotPublishable = errors.New("exam cannot be published")
	ErrAnswerFileNotFound = errors.New("answer file not found")
)

// FileStore retrieves stored answer-file objects by bucket key.
type FileStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// StudentExamStatus is the schedule status shown on a student's exam list.
type StudentExamStatus string

const (
	ExamUpcoming   StudentExamStatus = "UPCOMING"
	ExamOpen       StudentExamStatus = "OPEN"
	ExamInProgress StudentExamStatus = "IN_PROGRESS"
	ExamSubmitted  StudentExamStatus = "SUBMITTED"
	ExamClosed     StudentExamStatus = "CLOSED"
)

// StudentExamView is one row of a student's exam schedule: the exam plus the
// student's own standing in it.
type StudentExamView struct {
	Exam        model.Exam        `json:"exam"`
	Status      StudentExamStatus `json:"status"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
}

// ExamService handles exam scheduling and the student-facing exam list.
type ExamService struct {
	examRepo     *repository.ExamRepository
	subRepo      *repository.SubmissionRepository
	questionRepo *repository.QuestionRepository
	files        FileStore
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, subRepo *repository.SubmissionRepository, questionRepo *repository.QuestionRepository, files FileStore, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		subRepo:      subRepo,
		questionRepo: questionRepo,
		files:        files,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// ListForStudent returns the published exam schedule with each exam's status
// resolved for this student.
func (s *ExamService) ListForStudent(ctx context.Context, studentID int, now time.Time) ([]StudentExamView, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	subs, err := s.subRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	views := make([]StudentExamView, 0, len(exams))
	for _, exam := range exams {
		view := StudentExamView{Exam: exam, Status: resolveStatus(&exam, now)}
		if sub, ok := subs[exam.ID]; ok {
			if sub.Sealed() {
				view.Status = ExamSubmitted
				view.SubmittedAt = sub.SubmittedAt
			} else if sub.Status == model.SubmissionStarted && view.Status == ExamOpen {
				view.Status = ExamInProgress
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func resolveStatus(exam *model.Exam, now time.Time) StudentExamStatus {
	switch {
	case exam.OpensAfter(now):
		return ExamUpcoming
	case exam.OpenAt(now):
		return ExamOpen
	default:
		return ExamClosed
	}
}

// Create schedules a new exam as a draft.
func (s *ExamService) Create(ctx context.Context, adminID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		CourseCode:      req.CourseCode,
		Modality:        model.ExamModality(req.Modality),
		StartAt:         *req.StartAt,
		EndAt:           *req.EndAt,
		DurationMinutes: req.DurationMinutes,
		TotalMarks:      req.TotalMarks,
		Instructions:    req.Instructions,
		Status:          model.ExamStatusDraft,
		CreatedBy:       adminID,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("course", exam.CourseCode).
		Msg("Exam created")
	return exam, nil
}

// Get retrieves one exam by ID.
func (s *ExamService) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrExamNotFound
	}
	return exam, nil
}

// List retrieves exams with pagination.
func (s *ExamService) List(ctx context.Context, page, perPage int) ([]model.Exam, int, error) {
	return s.examRepo.ListPaginated(ctx, perPage, (page-1)*perPage)
}

// Update edits a draft exam. Published exams are locked because students may
// already be looking at the schedule.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrExamNotFound
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotEditable
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.CourseCode != "" {
		exam.CourseCode = req.CourseCode
	}
	if req.Modality != "" {
		exam.Modality = model.ExamModality(req.Modality)
	}
	if req.StartAt != nil {
		exam.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		exam.EndAt = *req.EndAt
	}
	if req.DurationMinutes != 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.TotalMarks != 0 {
		exam.TotalMarks = req.TotalMarks
	}
	if req.Instructions != nil {
		exam.Instructions = req.Instructions
	}
	if req.AttachmentURLs != nil {
		exam.AttachmentURLs = req.AttachmentURLs
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Publish makes a draft exam visible to students. Online exams must have at
// least one question before they can go out.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrExamNotFound
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotPublishable
	}

	if exam.Modality == model.ModalityOnline {
		questions, err := s.questionRepo.ListByExam(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check questions: %w", err)
		}
		if len(questions) == 0 {
			return nil, ErrExamNotPublishable
		}
	}

	if err := s.examRepo.UpdateStatus(ctx, id, model.ExamStatusPublished); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	exam.Status = model.ExamStatusPublished

	s.log.Info().Str("exam_id", id.String()).Msg("Exam published")
	return exam, nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return ErrExamNotFound
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotEditable
	}
	return s.examRepo.Delete(ctx, id)
}

// ReplaceQuestions swaps the question set of a draft exam.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, req *model.ReplaceQuestionsRequest) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return ErrExamNotFound
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotEditable
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, model.Question{
			Text:    q.Text,
			Options: q.Options,
			Marks:   q.Marks,
		})
	}
	return s.questionRepo.ReplaceForExam(ctx, examID, questions)
}

// Questions lists an exam's question set.
func (s *ExamService) Questions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// SubmissionCounts reports submission totals per status for one exam.
func (s *ExamService) SubmissionCounts(ctx context.Context, examID uuid.UUID) (map[model.SubmissionStatus]int, error) {
	return s.subRepo.CountByExam(ctx, examID)
}

// AnswerFile fetches one of a submission's uploaded answer files so exam
// office staff can review scripts without direct bucket access. The index
// addresses the submission's answer_files list.
func (s *ExamService) AnswerFile(ctx context.Context, submissionID uuid.UUID, index int) ([]byte, string, error) {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, "", ErrAnswerFileNotFound
	}
	if index < 0 || index >= len(sub.AnswerFiles) {
		return nil, "", ErrAnswerFileNotFound
	}

	key, err := objectKeyFromURL(sub.AnswerFiles[index])
	if err != nil {
		return nil, "", ErrAnswerFileNotFound
	}
	content, err := s.files.Download(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("download answer file %s: %w", key, err)
	}
	return content, path.Base(key), nil
}

// objectKeyFromURL recovers the bucket key from a stored object URL.
func objectKeyFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("no object key in %q", raw)
	}
	return key, nil
}
