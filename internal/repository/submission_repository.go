package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opencampus/portal-backend/internal/model"
)

// ErrSubmissionSealed is returned when a write targets a submission that has
// already been submitted.
var ErrSubmissionSealed = errors.New("submission already sealed")

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, exam_id, student_id, status, started_at,
	submitted_at, answers, answer_text, answer_files, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt,
		&s.SubmittedAt, &s.Answers, &s.AnswerText, &s.AnswerFiles, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	return s, nil
}

// GetByExamAndStudent retrieves the submission for one attempt. Returns
// (nil, nil) when the student has not started the exam yet.
func (r *SubmissionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByID retrieves a submission by its UUID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}

// Create inserts a started submission for the attempt. The unique constraint
// on (exam_id, student_id) makes this idempotent: when another request won
// the race the existing row is fetched and returned instead.
func (r *SubmissionRepository) Create(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, student_id, status, started_at, answers)
		 VALUES ($1, $2, $3, $4, '{}'::jsonb)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING `+submissionColumns,
		examID, studentID, model.SubmissionStarted, startedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByExamAndStudent(ctx, examID, studentID)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateAnswers persists the answer payload of a running attempt. Sealed
// submissions are left untouched and reported via ErrSubmissionSealed.
func (r *SubmissionRepository) UpdateAnswers(ctx context.Context, id uuid.UUID, answers map[string]string, answerText *string, answerFiles []string) (*model.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx,
		`UPDATE submissions
		 SET answers = $1, answer_text = $2, answer_files = $3, updated_at = NOW()
		 WHERE id = $4 AND status <> $5
		 RETURNING `+submissionColumns,
		answers, answerText, answerFiles, id, model.SubmissionSubmitted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionSealed
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Finalize seals a submission. The status guard makes the operation
// first-writer-wins: a second finalize, from any process, gets
// ErrSubmissionSealed instead of overwriting the recorded submit time.
func (r *SubmissionRepository) Finalize(ctx context.Context, id uuid.UUID, answers map[string]string, answerText *string, answerFiles []string, submittedAt time.Time) (*model.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx,
		`UPDATE submissions
		 SET status = $1, answers = $2, answer_text = $3, answer_files = $4,
		     submitted_at = $5, updated_at = NOW()
		 WHERE id = $6 AND status <> $1
		 RETURNING `+submissionColumns,
		model.SubmissionSubmitted, answers, answerText, answerFiles, submittedAt, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionSealed
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListOverdue retrieves started submissions whose exam window closed before
// the cutoff. Used by the deadline sweep to finalize attempts whose process
// died mid-exam.
func (r *SubmissionRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.exam_id, s.student_id, s.status, s.started_at,
		        s.submitted_at, s.answers, s.answer_text, s.answer_files, s.updated_at
		 FROM submissions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = $1 AND e.end_at < $2
		 ORDER BY e.end_at ASC
		 LIMIT $3`,
		model.SubmissionStarted, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// FinalizeOverdue seals an overdue submission at the exam's end time without
// touching its answers. Returns ErrSubmissionSealed when a live controller
// beat the sweep to it.
func (r *SubmissionRepository) FinalizeOverdue(ctx context.Context, id uuid.UUID, submittedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET status = $1, submitted_at = $2, updated_at = NOW()
		 WHERE id = $3 AND status <> $1`,
		model.SubmissionSubmitted, submittedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubmissionSealed
	}
	return nil
}

// CountByExam returns how many submissions an exam has per status.
func (r *SubmissionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (map[model.SubmissionStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM submissions WHERE exam_id = $1 GROUP BY status`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.SubmissionStatus]int)
	for rows.Next() {
		var status model.SubmissionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListByStudent retrieves all submissions of one student keyed by exam.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) (map[uuid.UUID]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make(map[uuid.UUID]model.Submission)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs[s.ExamID] = *s
	}
	return subs, rows.Err()
}
