package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// SubmissionAnswersKey returns the cache key for a student's buffered exam answers
func (r *CacheKeyStruct) SubmissionAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// SubmissionTextKey returns the cache key for a student's free-text answer
func (r *CacheKeyStruct) SubmissionTextKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answer_text", studentID, examID)
}

var CacheKey = NewCacheKeyStruct()
