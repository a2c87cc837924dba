package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/geo"
	"cabdispatch/internal/observability"
	"cabdispatch/internal/repository"
)

// DefaultMatchThresholdMeters is the farthest a vehicle may be from a rider
// for an automatic match.
const DefaultMatchThresholdMeters = 100.0

// MatchingConfig tunes the batch matcher.
type MatchingConfig struct {
	ThresholdMeters float64
	// Deadline bounds one pass. Zero means the pass runs to completion.
	Deadline time.Duration
}

// MatchingEngine pairs waiting riders with available vehicles.
type MatchingEngine struct {
	store   repository.Store
	cfg     MatchingConfig
	log     logrus.FieldLogger
	now     func() time.Time
	running atomic.Bool
}

// NewMatchingEngine creates a new MatchingEngine.
func NewMatchingEngine(store repository.Store, cfg MatchingConfig, log logrus.FieldLogger) *MatchingEngine {
	if cfg.ThresholdMeters <= 0 {
		cfg.ThresholdMeters = DefaultMatchThresholdMeters
	}
	return &MatchingEngine{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// BatchFailure records one request the pass could not process.
type BatchFailure struct {
	RequestID string
	VehicleID string
	Err       error
}

// BatchReport summarises one batch pass.
type BatchReport struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Vehicles    int
	Requests    int
	Assignments []*domain.RideAssignment
	Deferred    []string
	Failures    []BatchFailure
	// Stopped is set when the deadline or the caller's context cut the pass short.
	Stopped bool
}

// Err joins every per-request failure, or returns nil.
func (r *BatchReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("request %s: %w", f.RequestID, f.Err))
	}
	return errors.Join(errs...)
}

// RunBatch performs one greedy pass: waiting requests are taken oldest first
// and each gets the nearest remaining vehicle within the threshold.
// Requests with no such vehicle stay waiting for the next pass.
// Only one pass runs at a time; an overlapping call gets ErrBatchInProgress.
func (e *MatchingEngine) RunBatch(ctx context.Context) (*BatchReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		observability.BatchRunsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrBatchInProgress
	}
	defer e.running.Store(false)

	report := &BatchReport{StartedAt: e.now()}
	defer func() {
		observability.BatchDuration.Observe(time.Since(report.StartedAt).Seconds())
	}()

	vehicles, err := e.store.Vehicles().ListAvailable(ctx)
	if err != nil {
		observability.BatchRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list available vehicles: %w", err)
	}
	requests, err := e.store.Requests().ListWaiting(ctx)
	if err != nil {
		observability.BatchRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list waiting requests: %w", err)
	}
	report.Vehicles = len(vehicles)
	report.Requests = len(requests)

	points := make([]geo.Point, len(vehicles))
	for i, v := range vehicles {
		points[i] = geo.Point{ID: v.ID, Lat: v.Position.Lat, Lon: v.Position.Lon}
	}
	pool := geo.NewIndex(points, e.cfg.ThresholdMeters)

	var deadline time.Time
	if e.cfg.Deadline > 0 {
		deadline = report.StartedAt.Add(e.cfg.Deadline)
	}

	for i, req := range requests {
		if pool.Len() == 0 {
			report.deferAll(requests[i:])
			break
		}
		if ctx.Err() != nil || (!deadline.IsZero() && !e.now().Before(deadline)) {
			report.Stopped = true
			report.deferAll(requests[i:])
			break
		}
		e.matchOne(ctx, pool, req, report)
	}

	report.FinishedAt = e.now()
	observability.DeferredRequestsTotal.Add(float64(len(report.Deferred)))

	outcome := "ok"
	if len(report.Failures) > 0 {
		outcome = "partial"
	}
	observability.BatchRunsTotal.WithLabelValues(outcome).Inc()

	e.log.WithFields(logrus.Fields{
		"vehicles":    report.Vehicles,
		"requests":    report.Requests,
		"matched":     len(report.Assignments),
		"deferred":    len(report.Deferred),
		"failed":      len(report.Failures),
		"stopped":     report.Stopped,
		"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	}).Info("batch matching pass finished")

	return report, nil
}

// matchOne claims the nearest usable vehicle for req. Vehicles that turn out
// to be taken or moved since the snapshot leave the pool and the search repeats.
func (e *MatchingEngine) matchOne(ctx context.Context, pool *geo.Index, req *domain.RideRequest, report *BatchReport) {
	for {
		pos, _, ok := pool.Nearest(req.Position.Lat, req.Position.Lon)
		if !ok {
			report.Deferred = append(report.Deferred, req.ID)
			return
		}
		vehicleID := pool.Point(pos).ID

		assignment, err := e.claim(ctx, vehicleID, req.ID, domain.AssignmentSourceBatch)
		switch {
		case err == nil:
			pool.Take(pos)
			report.Assignments = append(report.Assignments, assignment)
			observability.MatchesTotal.WithLabelValues(string(domain.AssignmentSourceBatch)).Inc()
			return
		case errors.Is(err, errVehicleUnavailable), errors.Is(err, errVehicleMissing), errors.Is(err, errOutOfRange):
			pool.Take(pos)
			continue
		case errors.Is(err, errRequestNotWaiting):
			// Assigned or withdrawn by someone else since the snapshot.
			return
		default:
			e.log.WithFields(logrus.Fields{
				"request_id": req.ID,
				"vehicle_id": vehicleID,
			}).WithError(err).Warn("batch assignment failed")
			report.Failures = append(report.Failures, BatchFailure{RequestID: req.ID, VehicleID: vehicleID, Err: err})
			return
		}
	}
}

func (r *BatchReport) deferAll(requests []*domain.RideRequest) {
	for _, req := range requests {
		r.Deferred = append(r.Deferred, req.ID)
	}
}

// ForceAssign pairs a specific vehicle with a specific rider, skipping the
// distance check.
func (e *MatchingEngine) ForceAssign(ctx context.Context, vehicleID, requestID string) (*domain.RideAssignment, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	if requestID == "" {
		return nil, ErrInvalidRiderID
	}

	assignment, err := e.claim(ctx, vehicleID, requestID, domain.AssignmentSourceForce)
	if err != nil {
		return nil, err
	}

	observability.MatchesTotal.WithLabelValues(string(domain.AssignmentSourceForce)).Inc()
	e.log.WithFields(logrus.Fields{
		"assignment_id": assignment.ID,
		"vehicle_id":    vehicleID,
		"request_id":    requestID,
	}).Info("vehicle force-assigned")
	return assignment, nil
}

// claim runs the check-then-act sequence for one pairing as a single
// transaction. Rows are locked vehicle first, then request.
func (e *MatchingEngine) claim(ctx context.Context, vehicleID, requestID string, source domain.AssignmentSource) (*domain.RideAssignment, error) {
	var assignment *domain.RideAssignment

	err := e.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		vehicle, err := repos.Vehicles().GetForUpdate(ctx, vehicleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errVehicleMissing
			}
			return err
		}
		if !vehicle.Available {
			return errVehicleUnavailable
		}

		request, err := repos.Requests().GetForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errRequestMissing
			}
			return err
		}
		if !request.Waiting {
			return errRequestNotWaiting
		}

		meters := geo.Distance(vehicle.Position.Lat, vehicle.Position.Lon, request.Position.Lat, request.Position.Lon)
		if source == domain.AssignmentSourceBatch && meters > e.cfg.ThresholdMeters {
			return errOutOfRange
		}

		if err := repos.Vehicles().MarkAvailable(ctx, vehicleID, false); err != nil {
			return err
		}
		if err := repos.Requests().MarkWaiting(ctx, requestID, false); err != nil {
			return err
		}

		assignment = &domain.RideAssignment{
			ID:             uuid.New().String(),
			VehicleID:      vehicleID,
			RequestID:      requestID,
			Status:         domain.AssignmentStatusPending,
			Source:         source,
			DistanceMeters: meters,
			AssignedAt:     e.now(),
		}
		return repos.Assignments().Create(ctx, assignment)
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}
