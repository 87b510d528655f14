package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates the lifecycle of an exam attempt record.
type SubmissionStatus string

const (
	SubmissionNotStarted SubmissionStatus = "not_started"
	SubmissionStarted    SubmissionStatus = "started"
	SubmissionSubmitted  SubmissionStatus = "submitted"
)

// Submission is the persisted record of one student's attempt at one exam.
// At most one submission exists per (exam, student) pair. Once the status
// reaches submitted the record is sealed and never mutated again.
type Submission struct {
	ID          uuid.UUID         `json:"id"`
	ExamID      uuid.UUID         `json:"exam_id"`
	StudentID   int               `json:"student_id"`
	Status      SubmissionStatus  `json:"status"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
	AnswerText  *string           `json:"answer_text,omitempty"`
	AnswerFiles []string          `json:"answer_files,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Sealed reports whether the submission can no longer be mutated.
func (s *Submission) Sealed() bool {
	return s.Status == SubmissionSubmitted
}

// SaveAnswersRequest is the payload for buffering or saving answers.
// QuestionID-keyed answers are used for online exams; AnswerText for
// written_online exams.
type SaveAnswersRequest struct {
	Answers    map[string]string `json:"answers" binding:"omitempty,max=500"`
	AnswerText *string           `json:"answer_text" binding:"omitempty,max=100000"`
}
