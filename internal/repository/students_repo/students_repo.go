package students_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"billing/internal/domain"
)

type studentRepository struct {
	db *sql.DB
}

func NewStudentRepository(db *sql.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetStudentTx(ctx context.Context, querier domain.Querier, studentID string) (*domain.Student, error) {
	query := `SELECT id, school_id, first_name, last_name FROM students WHERE id = $1`
	student := &domain.Student{}
	err := querier.QueryRowContext(ctx, query, studentID).Scan(
		&student.ID,
		&student.SchoolID,
		&student.FirstName,
		&student.LastName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("student %s: %w", studentID, domain.ErrStudentNotFound)
		}
		return nil, fmt.Errorf("failed to get student %s: %w", studentID, err)
	}
	return student, nil
}

// MemoryRepository serves students registered through Put. Used when running without Postgres.
type MemoryRepository struct {
	mu       sync.RWMutex
	students map[string]domain.Student
}

func NewMemoryRepository(students ...domain.Student) *MemoryRepository {
	r := &MemoryRepository{students: make(map[string]domain.Student)}
	for _, s := range students {
		r.Put(s)
	}
	return r
}

func (r *MemoryRepository) Put(student domain.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[student.ID] = student
}

func (r *MemoryRepository) GetStudentTx(_ context.Context, _ domain.Querier, studentID string) (*domain.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	student, ok := r.students[studentID]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", studentID, domain.ErrStudentNotFound)
	}
	return &student, nil
}
