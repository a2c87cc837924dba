package repository

import (
	"context"

	"cabdispatch/internal/domain"
)

// AssignmentRepository is the append-only assignment store.
// Assignments are never deleted, only moved to a terminal status.
type AssignmentRepository interface {
	// Create persists a new assignment.
	Create(ctx context.Context, assignment *domain.RideAssignment) error

	// FindByID retrieves an assignment by ID.
	FindByID(ctx context.Context, id string) (*domain.RideAssignment, error)

	// FindForUpdate retrieves an assignment and holds it for the rest of the
	// enclosing transaction.
	FindForUpdate(ctx context.Context, id string) (*domain.RideAssignment, error)

	// Save updates the status and completion time of an assignment.
	Save(ctx context.Context, assignment *domain.RideAssignment) error

	// GetAll retrieves all assignments, newest first.
	GetAll(ctx context.Context) ([]*domain.RideAssignment, error)

	// ListByVehicle retrieves a vehicle's assignments in any of the given statuses.
	ListByVehicle(ctx context.Context, vehicleID string, statuses ...domain.AssignmentStatus) ([]*domain.RideAssignment, error)

	// ListByRequest retrieves a rider's assignments in any of the given statuses.
	ListByRequest(ctx context.Context, requestID string, statuses ...domain.AssignmentStatus) ([]*domain.RideAssignment, error)
}
