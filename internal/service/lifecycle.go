package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/observability"
	"cabdispatch/internal/redis"
	"cabdispatch/internal/repository"
)

// LifecycleService moves assignments through their status machine and
// answers assignment queries.
type LifecycleService struct {
	store repository.Store
	cache redis.AssignmentCacheInterface
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewLifecycleService creates a new LifecycleService. cache may be nil.
func NewLifecycleService(store repository.Store, cache redis.AssignmentCacheInterface, log logrus.FieldLogger) *LifecycleService {
	return &LifecycleService{
		store: store,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

// Transition moves an assignment to next. Reaching a terminal status stamps
// CompletedAt and frees the vehicle in the same transaction.
func (s *LifecycleService) Transition(ctx context.Context, assignmentID string, next domain.AssignmentStatus) (*domain.RideAssignment, error) {
	if assignmentID == "" {
		return nil, ErrInvalidAssignmentID
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	var updated *domain.RideAssignment
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		a, err := repos.Assignments().FindForUpdate(ctx, assignmentID)
		if err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, next)
		}

		a.Status = next
		if next.Terminal() {
			completedAt := s.now()
			a.CompletedAt = &completedAt

			if _, err := repos.Vehicles().GetForUpdate(ctx, a.VehicleID); err != nil {
				return fmt.Errorf("vehicle %s: %w", a.VehicleID, err)
			}
			if err := repos.Vehicles().MarkAvailable(ctx, a.VehicleID, true); err != nil {
				return err
			}
		}

		if err := repos.Assignments().Save(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx, updated)
	observability.TransitionsTotal.WithLabelValues(string(next)).Inc()
	s.log.WithFields(logrus.Fields{
		"assignment_id": assignmentID,
		"vehicle_id":    updated.VehicleID,
		"status":        next,
	}).Info("assignment transitioned")

	return updated, nil
}

// Get retrieves an assignment, reading through the cache when one is configured.
func (s *LifecycleService) Get(ctx context.Context, assignmentID string) (*domain.RideAssignment, error) {
	if assignmentID == "" {
		return nil, ErrInvalidAssignmentID
	}

	if s.cache != nil {
		cached, err := s.cache.GetAssignment(ctx, assignmentID)
		if err != nil {
			s.log.WithError(err).Debug("assignment cache read failed")
		} else if cached != nil {
			return cached.Assignment(), nil
		}
	}

	a, err := s.store.Assignments().FindByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	// The fill never replaces an entry a concurrent Transition already moved forward.
	if s.cache != nil {
		if _, err := s.cache.SetAssignment(ctx, redis.NewCachedAssignment(a)); err != nil {
			s.log.WithError(err).Debug("assignment cache write failed")
		}
	}
	return a, nil
}

// List retrieves all assignments, newest first.
func (s *LifecycleService) List(ctx context.Context) ([]*domain.RideAssignment, error) {
	return s.store.Assignments().GetAll(ctx)
}

// ActiveForVehicle returns the vehicle's PENDING or IN_PROGRESS assignments.
func (s *LifecycleService) ActiveForVehicle(ctx context.Context, vehicleID string) ([]*domain.RideAssignment, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	if _, err := s.store.Vehicles().GetByID(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.store.Assignments().ListByVehicle(ctx, vehicleID, domain.AssignmentStatusPending, domain.AssignmentStatusInProgress)
}

// HistoryForRider returns the rider's finished assignments.
func (s *LifecycleService) HistoryForRider(ctx context.Context, riderID string) ([]*domain.RideAssignment, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if _, err := s.store.Requests().GetByID(ctx, riderID); err != nil {
		return nil, err
	}
	return s.store.Assignments().ListByRequest(ctx, riderID, domain.AssignmentStatusCompleted, domain.AssignmentStatusCancelled)
}

// refreshCache writes the committed assignment over any cached copy. If the
// write fails the entry is dropped so readers fall back to the store.
func (s *LifecycleService) refreshCache(ctx context.Context, a *domain.RideAssignment) {
	if s.cache == nil {
		return
	}
	entry := s.log.WithField("assignment_id", a.ID)
	_, err := s.cache.SetAssignment(ctx, redis.NewCachedAssignment(a))
	if err == nil {
		return
	}
	entry.WithError(err).Warn("assignment cache refresh failed")
	if err := s.cache.InvalidateAssignments(ctx, a.ID); err != nil {
		entry.WithError(err).Warn("assignment cache invalidation failed")
	}
}
