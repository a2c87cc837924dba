package domain

import (
	"fmt"
	"time"
)

// AssignmentStatus represents the lifecycle state of a ride assignment.
type AssignmentStatus string

const (
	AssignmentStatusPending    AssignmentStatus = "PENDING"
	AssignmentStatusInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusCompleted  AssignmentStatus = "COMPLETED"
	AssignmentStatusCancelled  AssignmentStatus = "CANCELLED"
)

// assignmentTransitions lists the legal moves out of each non-terminal state.
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentStatusPending:    {AssignmentStatusInProgress, AssignmentStatusCancelled},
	AssignmentStatusInProgress: {AssignmentStatusCompleted, AssignmentStatusCancelled},
}

// ParseAssignmentStatus converts a raw value into a known status.
func ParseAssignmentStatus(raw string) (AssignmentStatus, error) {
	s := AssignmentStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown assignment status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the four known statuses.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentStatusPending, AssignmentStatusInProgress, AssignmentStatusCompleted, AssignmentStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusCancelled
}

// Stage orders statuses along the lifecycle: PENDING 0, IN_PROGRESS 1,
// terminal 2. Every legal transition strictly increases it.
func (s AssignmentStatus) Stage() int {
	switch s {
	case AssignmentStatusInProgress:
		return 1
	case AssignmentStatusCompleted, AssignmentStatusCancelled:
		return 2
	}
	return 0
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AssignmentSource records how an assignment was created.
type AssignmentSource string

const (
	AssignmentSourceBatch AssignmentSource = "BATCH"
	AssignmentSourceForce AssignmentSource = "FORCE"
)

// RideAssignment pairs one vehicle with one ride request.
// CompletedAt is set if and only if Status is terminal.
type RideAssignment struct {
	ID             string
	VehicleID      string
	RequestID      string
	Status         AssignmentStatus
	Source         AssignmentSource
	DistanceMeters float64
	AssignedAt     time.Time
	CompletedAt    *time.Time
}

// Active reports whether the assignment still holds its vehicle.
func (a *RideAssignment) Active() bool {
	return !a.Status.Terminal()
}
