package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"cabdispatch/internal/repository"
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Vehicles() repository.VehicleRepository {
	return NewVehicleRepository(s.db)
}

func (s *Store) Requests() repository.RequestRepository {
	return NewRequestRepository(s.db)
}

func (s *Store) Assignments() repository.AssignmentRepository {
	return NewAssignmentRepository(s.db)
}

func (s *Store) Administrators() repository.AdministratorRepository {
	return NewAdministratorRepository(s.db)
}

// WithinTx runs fn inside a database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, txRepos{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapWriteError(err))
	}
	return nil
}

type txRepos struct {
	tx *sql.Tx
}

func (r txRepos) Vehicles() repository.VehicleRepository {
	return NewVehicleRepositoryWithTx(r.tx)
}

func (r txRepos) Requests() repository.RequestRepository {
	return NewRequestRepositoryWithTx(r.tx)
}

func (r txRepos) Assignments() repository.AssignmentRepository {
	return NewAssignmentRepositoryWithTx(r.tx)
}
