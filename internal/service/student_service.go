package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/repository"
)

// ErrStudentExists is returned when a registration number is already taken.
var ErrStudentExists = errors.New("registration number already in use")

// StudentService handles student accounts.
type StudentService struct {
	studentRepo *repository.StudentRepository
	auth        *AuthService
	log         zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, auth *AuthService, log zerolog.Logger) *StudentService {
	return &StudentService{
		studentRepo: studentRepo,
		auth:        auth,
		log:         log.With().Str("component", "student_service").Logger(),
	}
}

// Login verifies credentials and issues a single-device token.
func (s *StudentService) Login(ctx context.Context, req *model.StudentLoginRequest) (string, *model.Student, error) {
	student, err := s.studentRepo.GetByRegNo(ctx, req.RegNo)
	if err != nil {
		return "", nil, fmt.Errorf("lookup student: %w", err)
	}
	if student == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := s.auth.CheckPassword(student.PasswordHash, req.Password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateStudentToken(ctx, student.ID)
	if err != nil {
		return "", nil, err
	}

	s.log.Info().Int("student_id", student.ID).Str("reg_no", student.RegNo).Msg("Student logged in")
	return token, student, nil
}

// Logout releases the student's active session.
func (s *StudentService) Logout(ctx context.Context, studentID int) error {
	return s.auth.ResetStudentSession(ctx, studentID)
}

// Create registers a new student account.
func (s *StudentService) Create(ctx context.Context, req *model.CreateStudentRequest) (*model.Student, error) {
	existing, err := s.studentRepo.GetByRegNo(ctx, req.RegNo)
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if existing != nil {
		return nil, ErrStudentExists
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := &model.Student{
		RegNo:        req.RegNo,
		Name:         req.Name,
		Programme:    req.Programme,
		PasswordHash: hash,
	}
	if err := s.studentRepo.Create(ctx, student); err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}
	return student, nil
}

// Get retrieves a student by ID.
func (s *StudentService) Get(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// AdminService handles exam-office accounts.
type AdminService struct {
	adminRepo *repository.AdminRepository
	auth      *AuthService
	log       zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(adminRepo *repository.AdminRepository, auth *AuthService, log zerolog.Logger) *AdminService {
	return &AdminService{
		adminRepo: adminRepo,
		auth:      auth,
		log:       log.With().Str("component", "admin_service").Logger(),
	}
}

// Login verifies admin credentials and issues a token.
func (s *AdminService) Login(ctx context.Context, req *model.AdminLoginRequest) (string, *model.Admin, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return "", nil, fmt.Errorf("lookup admin: %w", err)
	}
	if admin == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := s.auth.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateAdminToken(admin.ID)
	if err != nil {
		return "", nil, err
	}

	s.log.Info().Int("admin_id", admin.ID).Msg("Admin logged in")
	return token, admin, nil
}
