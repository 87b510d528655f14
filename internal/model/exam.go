package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamModality distinguishes how an exam is sat.
type ExamModality string

const (
	// ModalityOnline is a structured exam answered question-by-question in the portal.
	ModalityOnline ExamModality = "online"
	// ModalityWrittenOnline is a free-text exam, optionally with file attachments.
	ModalityWrittenOnline ExamModality = "written_online"
	// ModalityPhysical is sat on paper; the portal only shows the schedule.
	ModalityPhysical ExamModality = "physical"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
)

// Exam represents a scheduled exam. Start and end timestamps are
// server-authoritative; attempts are only valid inside [StartAt, EndAt).
type Exam struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	CourseCode      string       `json:"course_code"`
	Modality        ExamModality `json:"modality"`
	StartAt         time.Time    `json:"start_at"`
	EndAt           time.Time    `json:"end_at"`
	DurationMinutes int          `json:"duration_minutes"`
	TotalMarks      int          `json:"total_marks"`
	Instructions    *string      `json:"instructions,omitempty"`
	AttachmentURLs  []string     `json:"attachment_urls,omitempty"`
	Status          ExamStatus   `json:"status"`
	CreatedBy       int          `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// OpensAfter reports whether the exam window has not opened yet at now.
func (e *Exam) OpensAfter(now time.Time) bool {
	return now.Before(e.StartAt)
}

// OpenAt reports whether now falls inside the exam window [StartAt, EndAt).
func (e *Exam) OpenAt(now time.Time) bool {
	return !now.Before(e.StartAt) && now.Before(e.EndAt)
}

// ClosedAt reports whether the exam window has passed at now.
func (e *Exam) ClosedAt(now time.Time) bool {
	return !now.Before(e.EndAt)
}

// CreateExamRequest is the payload for scheduling a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	CourseCode      string     `json:"course_code" binding:"required,min=2,max=32"`
	Modality        string     `json:"modality" binding:"required,oneof=online written_online physical"`
	StartAt         *time.Time `json:"start_at" binding:"required"`
	EndAt           *time.Time `json:"end_at" binding:"required,gtfield=StartAt"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	TotalMarks      int        `json:"total_marks" binding:"required,min=1,max=1000"`
	Instructions    *string    `json:"instructions" binding:"omitempty,max=5000"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	CourseCode      string     `json:"course_code" binding:"omitempty,min=2,max=32"`
	Modality        string     `json:"modality" binding:"omitempty,oneof=online written_online physical"`
	StartAt         *time.Time `json:"start_at" binding:"omitempty"`
	EndAt           *time.Time `json:"end_at" binding:"omitempty,gtfield=StartAt"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	TotalMarks      int        `json:"total_marks" binding:"omitempty,min=1,max=1000"`
	Instructions    *string    `json:"instructions" binding:"omitempty,max=5000"`
	AttachmentURLs  []string   `json:"attachment_urls" binding:"omitempty,max=10,dive,url"`
}
