package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opencampus/portal-backend/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByRegNo retrieves a student by registration number. Returns (nil, nil)
// when no such student exists.
func (r *StudentRepository) GetByRegNo(ctx context.Context, regNo string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, reg_no, name, programme, password_hash, created_at
		 FROM students WHERE reg_no = $1`, regNo).
		Scan(&s.ID, &s.RegNo, &s.Name, &s.Programme, &s.PasswordHash, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, reg_no, name, programme, password_hash, created_at
		 FROM students WHERE id = $1`, id).
		Scan(&s.ID, &s.RegNo, &s.Name, &s.Programme, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (reg_no, name, programme, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		s.RegNo, s.Name, s.Programme, s.PasswordHash).
		Scan(&s.ID, &s.CreatedAt)
}
