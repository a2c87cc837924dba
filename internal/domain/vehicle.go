package domain

import "time"

// Vehicle represents a dispatchable cab in the system.
// Available is false exactly while the vehicle is referenced by a
// PENDING or IN_PROGRESS assignment.
type Vehicle struct {
	ID string
	Contact
	LicenseNumber string
	CabNumber     string
	Position      Location
	Available     bool
	CreatedAt     time.Time
}
