package students_repo

import (
	"context"

	"billing/internal/domain"
)

// StudentRepository is a read-only view over the school directory.
type StudentRepository interface {
	GetStudentTx(ctx context.Context, querier domain.Querier, studentID string) (*domain.Student, error)
}
