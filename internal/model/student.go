package model

import "time"

// Student represents a portal user who sits exams.
type Student struct {
	ID           int       `json:"id"`
	RegNo        string    `json:"reg_no"`
	Name         string    `json:"name"`
	Programme    string    `json:"programme"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	RegNo    string `json:"reg_no" binding:"required,min=4,max=32"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	RegNo     string `json:"reg_no" binding:"required,min=4,max=32"`
	Name      string `json:"name" binding:"required,min=2,max=255"`
	Programme string `json:"programme" binding:"required,min=2,max=128"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
}
