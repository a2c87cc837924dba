package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write collides with existing state,
	// such as a duplicate ID or a second active assignment for one vehicle.
	ErrConflict = errors.New("entity conflict")
)
