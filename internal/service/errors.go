package service

import (
	"errors"
	"fmt"

	"cabdispatch/internal/repository"
)

var (
	// ErrNotFound is returned when a vehicle, rider or assignment does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrConflict is returned when an entity is not in the state an operation needs,
	// such as a vehicle that is already assigned.
	ErrConflict = repository.ErrConflict

	// ErrInvalidTransition is returned for an unknown status or a move the
	// assignment state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBatchInProgress is returned when a batch pass is requested while one is running.
	ErrBatchInProgress = errors.New("batch run already in progress")

	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidAssignmentID is returned when assignment ID is empty.
	ErrInvalidAssignmentID = errors.New("invalid assignment id")

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidName is returned when a registration has no name.
	ErrInvalidName = errors.New("invalid name")
)

// Claim outcomes. The batch pass uses them to tell which side of a pairing
// changed since its snapshot.
var (
	errVehicleMissing     = fmt.Errorf("vehicle: %w", ErrNotFound)
	errRequestMissing     = fmt.Errorf("ride request: %w", ErrNotFound)
	errVehicleUnavailable = fmt.Errorf("vehicle not available: %w", ErrConflict)
	errRequestNotWaiting  = fmt.Errorf("request not waiting: %w", ErrConflict)
	errOutOfRange         = fmt.Errorf("vehicle outside match threshold: %w", ErrConflict)
)
