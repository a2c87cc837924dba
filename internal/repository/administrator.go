package repository

import (
	"context"

	"cabdispatch/internal/domain"
)

// AdministratorRepository defines the persistence operations for administrators.
type AdministratorRepository interface {
	Create(ctx context.Context, admin *domain.Administrator) error
	GetAll(ctx context.Context) ([]*domain.Administrator, error)
}
