package domain

import "time"

// RideRequest represents a rider and their current ask for a ride.
// Waiting is true only while the rider is queued for matching and no
// assignment references them.
type RideRequest struct {
	ID string
	Contact
	Position    Location
	Destination Location
	Home        *Location
	Waiting     bool
	RequestedAt time.Time
	CreatedAt   time.Time
}
