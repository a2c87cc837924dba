package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/repository"
)

// FleetService manages the vehicle registry and the rider queue.
type FleetService struct {
	store repository.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewFleetService creates a new FleetService.
func NewFleetService(store repository.Store, log logrus.FieldLogger) *FleetService {
	return &FleetService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// RegisterVehicleRequest contains the parameters for registering a vehicle.
type RegisterVehicleRequest struct {
	Contact       domain.Contact
	LicenseNumber string
	CabNumber     string
	Position      domain.Location
}

// RegisterVehicle adds a vehicle to the fleet. New vehicles start available.
func (s *FleetService) RegisterVehicle(ctx context.Context, req RegisterVehicleRequest) (*domain.Vehicle, error) {
	if strings.TrimSpace(req.Contact.Name) == "" {
		return nil, ErrInvalidName
	}
	if !validLocation(req.Position) {
		return nil, ErrInvalidLocation
	}

	vehicle := &domain.Vehicle{
		ID:            uuid.New().String(),
		Contact:       req.Contact,
		LicenseNumber: req.LicenseNumber,
		CabNumber:     req.CabNumber,
		Position:      req.Position,
		Available:     true,
		CreatedAt:     s.now(),
	}
	if err := s.store.Vehicles().Create(ctx, vehicle); err != nil {
		return nil, err
	}
	return vehicle, nil
}

// GetVehicle retrieves a vehicle by ID.
func (s *FleetService) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	if id == "" {
		return nil, ErrInvalidVehicleID
	}
	return s.store.Vehicles().GetByID(ctx, id)
}

// ListVehicles retrieves all vehicles.
func (s *FleetService) ListVehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	return s.store.Vehicles().GetAll(ctx)
}

// UpdateVehiclePosition records a new position for a vehicle.
func (s *FleetService) UpdateVehiclePosition(ctx context.Context, id string, position domain.Location) (*domain.Vehicle, error) {
	if id == "" {
		return nil, ErrInvalidVehicleID
	}
	if !validLocation(position) {
		return nil, ErrInvalidLocation
	}
	if err := s.store.Vehicles().UpdatePosition(ctx, id, position); err != nil {
		return nil, err
	}
	return s.store.Vehicles().GetByID(ctx, id)
}

// UpdateVehicleRequest contains the registration details a vehicle may change.
// Availability follows the assignment lifecycle and is not part of it.
type UpdateVehicleRequest struct {
	Contact       domain.Contact
	LicenseNumber string
	CabNumber     string
}

// UpdateVehicle replaces the contact, license and cab number of a vehicle.
func (s *FleetService) UpdateVehicle(ctx context.Context, id string, req UpdateVehicleRequest) (*domain.Vehicle, error) {
	if id == "" {
		return nil, ErrInvalidVehicleID
	}
	if strings.TrimSpace(req.Contact.Name) == "" {
		return nil, ErrInvalidName
	}

	var updated *domain.Vehicle
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		vehicle, err := repos.Vehicles().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		vehicle.Contact = req.Contact
		vehicle.LicenseNumber = req.LicenseNumber
		vehicle.CabNumber = req.CabNumber
		if err := repos.Vehicles().Update(ctx, vehicle); err != nil {
			return err
		}
		updated = vehicle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RetireVehicle removes a vehicle from the fleet. Its assignment history is
// kept. A vehicle with an active assignment cannot be retired.
func (s *FleetService) RetireVehicle(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidVehicleID
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Vehicles().GetForUpdate(ctx, id); err != nil {
			return err
		}
		active, err := repos.Assignments().ListByVehicle(ctx, id, domain.AssignmentStatusPending, domain.AssignmentStatusInProgress)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("vehicle %s has active assignment %s: %w", id, active[0].ID, ErrConflict)
		}
		return repos.Vehicles().Retire(ctx, id, s.now())
	})
	if err != nil {
		return err
	}

	s.log.WithField("vehicle_id", id).Info("vehicle retired")
	return nil
}

// RegisterRiderRequest contains the parameters for registering a rider.
type RegisterRiderRequest struct {
	Contact  domain.Contact
	Position domain.Location
	Home     *domain.Location
}

// RegisterRider adds a rider. Riders are not queued until they request a ride.
func (s *FleetService) RegisterRider(ctx context.Context, req RegisterRiderRequest) (*domain.RideRequest, error) {
	if strings.TrimSpace(req.Contact.Name) == "" {
		return nil, ErrInvalidName
	}
	if !validLocation(req.Position) {
		return nil, ErrInvalidLocation
	}
	if req.Home != nil && !validLocation(*req.Home) {
		return nil, ErrInvalidLocation
	}

	rider := &domain.RideRequest{
		ID:        uuid.New().String(),
		Contact:   req.Contact,
		Position:  req.Position,
		Home:      req.Home,
		CreatedAt: s.now(),
	}
	if err := s.store.Requests().Create(ctx, rider); err != nil {
		return nil, err
	}
	return rider, nil
}

// GetRider retrieves a rider by ID.
func (s *FleetService) GetRider(ctx context.Context, id string) (*domain.RideRequest, error) {
	if id == "" {
		return nil, ErrInvalidRiderID
	}
	return s.store.Requests().GetByID(ctx, id)
}

// ListRiders retrieves all riders.
func (s *FleetService) ListRiders(ctx context.Context) ([]*domain.RideRequest, error) {
	return s.store.Requests().GetAll(ctx)
}

// UpdateRiderPosition records a new position for a rider.
func (s *FleetService) UpdateRiderPosition(ctx context.Context, id string, position domain.Location) (*domain.RideRequest, error) {
	if !validLocation(position) {
		return nil, ErrInvalidLocation
	}
	return s.updateRider(ctx, id, func(ctx context.Context, repos repository.Repositories, r *domain.RideRequest) error {
		r.Position = position
		return nil
	})
}

// SetHome records a rider's home location.
func (s *FleetService) SetHome(ctx context.Context, id string, home domain.Location) (*domain.RideRequest, error) {
	if !validLocation(home) {
		return nil, ErrInvalidLocation
	}
	return s.updateRider(ctx, id, func(ctx context.Context, repos repository.Repositories, r *domain.RideRequest) error {
		r.Home = &home
		return nil
	})
}

// UpdateRider replaces the contact details of a rider.
func (s *FleetService) UpdateRider(ctx context.Context, id string, contact domain.Contact) (*domain.RideRequest, error) {
	if strings.TrimSpace(contact.Name) == "" {
		return nil, ErrInvalidName
	}
	return s.updateRider(ctx, id, func(ctx context.Context, repos repository.Repositories, r *domain.RideRequest) error {
		r.Contact = contact
		return nil
	})
}

// RetireRider removes a rider and drops any pending ride request. Their
// assignment history is kept. A rider with an active assignment cannot be
// retired.
func (s *FleetService) RetireRider(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidRiderID
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Requests().GetForUpdate(ctx, id); err != nil {
			return err
		}
		active, err := repos.Assignments().ListByRequest(ctx, id, domain.AssignmentStatusPending, domain.AssignmentStatusInProgress)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("rider %s has active assignment %s: %w", id, active[0].ID, ErrConflict)
		}
		return repos.Requests().Retire(ctx, id, s.now())
	})
	if err != nil {
		return err
	}

	s.log.WithField("request_id", id).Info("rider retired")
	return nil
}

// RequestRide queues a rider for the next batch pass. A rider who is already
// waiting keeps their place in the queue; a rider with an active assignment
// gets ErrConflict.
func (s *FleetService) RequestRide(ctx context.Context, id string, pickup, destination domain.Location) (*domain.RideRequest, error) {
	if !validLocation(pickup) || !validLocation(destination) {
		return nil, ErrInvalidLocation
	}

	rider, err := s.updateRider(ctx, id, func(ctx context.Context, repos repository.Repositories, r *domain.RideRequest) error {
		active, err := repos.Assignments().ListByRequest(ctx, r.ID, domain.AssignmentStatusPending, domain.AssignmentStatusInProgress)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("rider %s has active assignment %s: %w", r.ID, active[0].ID, ErrConflict)
		}

		r.Position = pickup
		r.Destination = destination
		if r.Waiting {
			return nil
		}
		r.Waiting = true
		r.RequestedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request_id":   rider.ID,
		"requested_at": rider.RequestedAt,
	}).Info("ride requested")
	return rider, nil
}

// updateRider applies fn to a locked rider row and saves the result.
func (s *FleetService) updateRider(ctx context.Context, id string, fn func(context.Context, repository.Repositories, *domain.RideRequest) error) (*domain.RideRequest, error) {
	if id == "" {
		return nil, ErrInvalidRiderID
	}

	var updated *domain.RideRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		rider, err := repos.Requests().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if err := fn(ctx, repos, rider); err != nil {
			return err
		}
		if err := repos.Requests().Update(ctx, rider); err != nil {
			return err
		}
		updated = rider
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func validLocation(loc domain.Location) bool {
	return loc.Lat >= -90 && loc.Lat <= 90 && loc.Lon >= -180 && loc.Lon <= 180
}
