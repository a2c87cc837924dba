package repository

import "context"

// Repositories groups the registries that take part in dispatch writes.
type Repositories interface {
	Vehicles() VehicleRepository
	Requests() RequestRepository
	Assignments() AssignmentRepository
}

// Store is the persistence boundary of the dispatch core.
type Store interface {
	Repositories
	Administrators() AdministratorRepository

	// WithinTx runs fn as one atomic unit. Every read through the supplied
	// repositories that uses a ForUpdate method locks the row until fn
	// returns. If fn returns an error no write made through repos is kept.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
