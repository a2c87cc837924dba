package repository

import (
	"context"
	"time"

	"cabdispatch/internal/domain"
)

// RequestRepository is the ride request queue.
type RequestRepository interface {
	// Create adds a new rider.
	Create(ctx context.Context, request *domain.RideRequest) error

	// GetByID retrieves a rider by ID.
	GetByID(ctx context.Context, id string) (*domain.RideRequest, error)

	// GetForUpdate retrieves a rider and holds it for the rest of the
	// enclosing transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.RideRequest, error)

	// GetAll retrieves all riders.
	GetAll(ctx context.Context) ([]*domain.RideRequest, error)

	// ListWaiting retrieves waiting riders, oldest request first, ties by ID.
	ListWaiting(ctx context.Context) ([]*domain.RideRequest, error)

	// MarkWaiting sets the waiting flag of a rider.
	MarkWaiting(ctx context.Context, id string, waiting bool) error

	// Update replaces the mutable fields of a rider.
	Update(ctx context.Context, request *domain.RideRequest) error

	// Retire removes a rider from every read and from the queue while
	// keeping the record that its assignments point at.
	Retire(ctx context.Context, id string, at time.Time) error
}
