package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencampus/portal-backend/internal/model"
)

// Sentinel errors returned by controllers and gateway implementations.
var (
	// ErrExamNotFound means the exam does not exist; fatal to the session.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamNotOnline means the exam is sat on paper and cannot be attempted
	// through the portal.
	ErrExamNotOnline = errors.New("exam is not sat online")
	// ErrAlreadySubmitted means the attempt was already finalized, possibly
	// by a concurrent session or the deadline sweep.
	ErrAlreadySubmitted = errors.New("submission already finalized")
	// ErrWindowNotOpen means the action fell outside [StartAt, EndAt).
	ErrWindowNotOpen = errors.New("exam window is not open")
	// ErrInvalidPhase means the operation is not valid in the current phase.
	ErrInvalidPhase = errors.New("operation not valid in current phase")
	// ErrTooManyFiles means the answer-file cap was reached.
	ErrTooManyFiles = errors.New("answer file limit reached")
)

// PersistError wraps a gateway failure that blocked a state transition.
// Callers surface it to the user so the action can be retried.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// PartialUploadError reports answer files that failed to upload during
// submission. The submission itself is already sealed with the files that
// succeeded; callers surface the failures after the fact.
type PartialUploadError struct {
	Failed map[string]error
}

func (e *PartialUploadError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	return fmt.Sprintf("submitted, but %d answer file(s) failed to upload: %s",
		len(e.Failed), strings.Join(names, ", "))
}

// AnswerFile is a local file attached to the attempt, uploaded on submit.
type AnswerFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmissionUpdate is a partial write against a submission record. Nil
// fields are left untouched.
type SubmissionUpdate struct {
	Answers     map[string]string
	AnswerText  *string
	AnswerFiles []string
	Status      *model.SubmissionStatus
	SubmittedAt *time.Time
}

// Gateway is the persistence boundary of the session core. Implementations
// provide at-least-once semantics and no transactional guarantees across
// calls; the controller is written to tolerate that.
type Gateway interface {
	// FetchExam returns the exam descriptor or ErrExamNotFound.
	FetchExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	// FetchSubmission returns the student's submission for the exam, or
	// (nil, nil) when none exists yet.
	FetchSubmission(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error)
	// CreateSubmission creates a started submission, or returns the existing
	// one when a concurrent create won (idempotent).
	CreateSubmission(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.Submission, error)
	// UpdateSubmission applies a partial update. When upd.Status seals the
	// record and another writer sealed it first, implementations return the
	// stored submission together with ErrAlreadySubmitted.
	UpdateSubmission(ctx context.Context, submissionID uuid.UUID, upd SubmissionUpdate) (*model.Submission, error)
	// UploadAnswerFile stores a blob and returns its public URL.
	UploadAnswerFile(ctx context.Context, examID uuid.UUID, studentID int, file AnswerFile) (string, error)
	// FetchQuestions lists the question set of a structured exam.
	FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}
