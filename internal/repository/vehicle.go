package repository

import (
	"context"
	"time"

	"cabdispatch/internal/domain"
)

// VehicleRepository is the vehicle registry.
type VehicleRepository interface {
	// Create adds a new vehicle.
	Create(ctx context.Context, vehicle *domain.Vehicle) error

	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// GetForUpdate retrieves a vehicle and holds it for the rest of the
	// enclosing transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.Vehicle, error)

	// GetAll retrieves all vehicles.
	GetAll(ctx context.Context) ([]*domain.Vehicle, error)

	// ListAvailable retrieves vehicles whose availability flag is set, ordered by ID.
	ListAvailable(ctx context.Context) ([]*domain.Vehicle, error)

	// MarkAvailable sets the availability flag of a vehicle.
	MarkAvailable(ctx context.Context, id string, available bool) error

	// UpdatePosition moves a vehicle.
	UpdatePosition(ctx context.Context, id string, position domain.Location) error

	// Update replaces the contact, license and cab number of a vehicle.
	Update(ctx context.Context, vehicle *domain.Vehicle) error

	// Retire removes a vehicle from every read while keeping the record
	// that its assignments point at.
	Retire(ctx context.Context, id string, at time.Time) error
}
