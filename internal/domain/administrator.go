package domain

import "time"

// Administrator represents a transport administrator.
type Administrator struct {
	ID string
	Contact
	EmployeeID string
	Department string
	CreatedAt  time.Time
}
