package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"cabdispatch/internal/domain"
)

const assignmentColumns = `id, vehicle_id, request_id, status, source, distance_meters, assigned_at, completed_at`

// AssignmentRepository is a PostgreSQL implementation of repository.AssignmentRepository.
type AssignmentRepository struct {
	q Querier
}

// NewAssignmentRepository creates a new PostgreSQL assignment repository.
func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{q: db}
}

// NewAssignmentRepositoryWithTx creates an assignment repository using a transaction.
func NewAssignmentRepositoryWithTx(tx *sql.Tx) *AssignmentRepository {
	return &AssignmentRepository{q: tx}
}

// Create persists a new assignment. The partial unique indexes on
// ride_assignments reject a second active assignment for a vehicle or rider.
func (r *AssignmentRepository) Create(ctx context.Context, a *domain.RideAssignment) error {
	query := `INSERT INTO ride_assignments (` + assignmentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.ExecContext(ctx, query,
		a.ID,
		a.VehicleID,
		a.RequestID,
		a.Status,
		a.Source,
		a.DistanceMeters,
		a.AssignedAt,
		nullableTimePtr(a.CompletedAt),
	)
	return mapWriteError(err)
}

// FindByID retrieves an assignment by ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*domain.RideAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM ride_assignments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// FindForUpdate retrieves an assignment and locks its row until the transaction ends.
func (r *AssignmentRepository) FindForUpdate(ctx context.Context, id string) (*domain.RideAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM ride_assignments WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *AssignmentRepository) getOne(ctx context.Context, query, id string) (*domain.RideAssignment, error) {
	a, err := scanAssignment(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return a, nil
}

// Save updates the status and completion time of an assignment.
func (r *AssignmentRepository) Save(ctx context.Context, a *domain.RideAssignment) error {
	query := `UPDATE ride_assignments SET status = $1, completed_at = $2 WHERE id = $3`
	return expectOneRow(r.q.ExecContext(ctx, query, a.Status, nullableTimePtr(a.CompletedAt), a.ID))
}

// GetAll retrieves all assignments, newest first.
func (r *AssignmentRepository) GetAll(ctx context.Context) ([]*domain.RideAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM ride_assignments ORDER BY assigned_at DESC, id`)
}

// ListByVehicle retrieves a vehicle's assignments, optionally filtered by status.
func (r *AssignmentRepository) ListByVehicle(ctx context.Context, vehicleID string, statuses ...domain.AssignmentStatus) ([]*domain.RideAssignment, error) {
	return r.listBy(ctx, "vehicle_id", vehicleID, statuses)
}

// ListByRequest retrieves a rider's assignments, optionally filtered by status.
func (r *AssignmentRepository) ListByRequest(ctx context.Context, requestID string, statuses ...domain.AssignmentStatus) ([]*domain.RideAssignment, error) {
	return r.listBy(ctx, "request_id", requestID, statuses)
}

// listBy is only called with fixed column names.
func (r *AssignmentRepository) listBy(ctx context.Context, column, id string, statuses []domain.AssignmentStatus) ([]*domain.RideAssignment, error) {
	if len(statuses) == 0 {
		query := `SELECT ` + assignmentColumns + ` FROM ride_assignments WHERE ` + column + ` = $1 ORDER BY assigned_at DESC, id`
		return r.list(ctx, query, id)
	}

	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}
	query := `SELECT ` + assignmentColumns + ` FROM ride_assignments WHERE ` + column + ` = $1 AND status = ANY($2) ORDER BY assigned_at DESC, id`
	return r.list(ctx, query, id, pq.Array(raw))
}

func (r *AssignmentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.RideAssignment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*domain.RideAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func scanAssignment(row rowScanner) (*domain.RideAssignment, error) {
	var (
		a           domain.RideAssignment
		completedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.VehicleID,
		&a.RequestID,
		&a.Status,
		&a.Source,
		&a.DistanceMeters,
		&a.AssignedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		at := completedAt.Time
		a.CompletedAt = &at
	}
	return &a, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullableTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullableTime(*t)
}
