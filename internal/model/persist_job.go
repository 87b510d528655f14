package model

import "github.com/google/uuid"

// AnswerPersistJob is the queue payload that carries an autosaved answer set
// from the cache to the database.
type AnswerPersistJob struct {
	SubmissionID uuid.UUID         `json:"submission_id"`
	Answers      map[string]string `json:"answers"`
	AnswerText   *string           `json:"answer_text,omitempty"`
	AnswerFiles  []string          `json:"answer_files,omitempty"`
}
