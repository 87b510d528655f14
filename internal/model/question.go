package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single question of a structured (online) exam.
type Question struct {
	ID       uuid.UUID       `json:"id"`
	ExamID   uuid.UUID       `json:"exam_id"`
	Text     string          `json:"text"`
	Options  json.RawMessage `json:"options,omitempty"`
	Marks    int             `json:"marks"`
	Position int             `json:"position"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Text     string          `json:"text" binding:"required,min=1,max=5000"`
	Options  json.RawMessage `json:"options" binding:"omitempty"`
	Marks    int             `json:"marks" binding:"required,min=1,max=100"`
	Position int             `json:"position" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,dive"`
}
