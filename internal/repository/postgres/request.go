package postgres

import (
	"context"
	"database/sql"
	"time"

	"cabdispatch/internal/domain"
)

const requestColumns = `id, name, email, phone, lat, lon, dest_lat, dest_lon, home_lat, home_lon, waiting, requested_at, created_at`

// RequestRepository is a PostgreSQL implementation of repository.RequestRepository.
type RequestRepository struct {
	q Querier
}

// NewRequestRepository creates a new PostgreSQL ride request repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{q: db}
}

// NewRequestRepositoryWithTx creates a ride request repository using a transaction.
func NewRequestRepositoryWithTx(tx *sql.Tx) *RequestRepository {
	return &RequestRepository{q: tx}
}

// Create adds a new rider.
func (r *RequestRepository) Create(ctx context.Context, request *domain.RideRequest) error {
	query := `INSERT INTO ride_requests (` + requestColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	homeLat, homeLon := nullableLocation(request.Home)
	_, err := r.q.ExecContext(ctx, query,
		request.ID,
		request.Name,
		request.Email,
		request.Phone,
		request.Position.Lat,
		request.Position.Lon,
		request.Destination.Lat,
		request.Destination.Lon,
		homeLat,
		homeLon,
		request.Waiting,
		nullableTime(request.RequestedAt),
		request.CreatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a rider by ID.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ride_requests WHERE id = $1 AND retired_at IS NULL`
	return r.getOne(ctx, query, id)
}

// GetForUpdate retrieves a rider and locks its row until the transaction ends.
func (r *RequestRepository) GetForUpdate(ctx context.Context, id string) (*domain.RideRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM ride_requests WHERE id = $1 AND retired_at IS NULL FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *RequestRepository) getOne(ctx context.Context, query, id string) (*domain.RideRequest, error) {
	request, err := scanRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return request, nil
}

// GetAll retrieves all riders that have not been retired.
func (r *RequestRepository) GetAll(ctx context.Context) ([]*domain.RideRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM ride_requests WHERE retired_at IS NULL ORDER BY id`)
}

// ListWaiting retrieves waiting riders, oldest request first.
func (r *RequestRepository) ListWaiting(ctx context.Context) ([]*domain.RideRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM ride_requests WHERE waiting = TRUE AND retired_at IS NULL ORDER BY requested_at, id`)
}

func (r *RequestRepository) list(ctx context.Context, query string) ([]*domain.RideRequest, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.RideRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

// MarkWaiting sets the waiting flag of a rider.
func (r *RequestRepository) MarkWaiting(ctx context.Context, id string, waiting bool) error {
	query := `UPDATE ride_requests SET waiting = $1 WHERE id = $2 AND retired_at IS NULL`
	return expectOneRow(r.q.ExecContext(ctx, query, waiting, id))
}

// Update replaces the mutable fields of a rider.
func (r *RequestRepository) Update(ctx context.Context, request *domain.RideRequest) error {
	query := `
		UPDATE ride_requests
		SET name = $1, email = $2, phone = $3, lat = $4, lon = $5, dest_lat = $6, dest_lon = $7,
		    home_lat = $8, home_lon = $9, waiting = $10, requested_at = $11
		WHERE id = $12 AND retired_at IS NULL
	`
	homeLat, homeLon := nullableLocation(request.Home)
	return expectOneRow(r.q.ExecContext(ctx, query,
		request.Name,
		request.Email,
		request.Phone,
		request.Position.Lat,
		request.Position.Lon,
		request.Destination.Lat,
		request.Destination.Lon,
		homeLat,
		homeLon,
		request.Waiting,
		nullableTime(request.RequestedAt),
		request.ID,
	))
}

// Retire hides a rider from every read and drops them from the queue. The row
// stays so that assignment history keeps its reference.
func (r *RequestRepository) Retire(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE ride_requests SET retired_at = $1, waiting = FALSE WHERE id = $2 AND retired_at IS NULL`
	return expectOneRow(r.q.ExecContext(ctx, query, at, id))
}

func scanRequest(row rowScanner) (*domain.RideRequest, error) {
	var (
		req              domain.RideRequest
		homeLat, homeLon sql.NullFloat64
		requestedAt      sql.NullTime
	)
	err := row.Scan(
		&req.ID,
		&req.Name,
		&req.Email,
		&req.Phone,
		&req.Position.Lat,
		&req.Position.Lon,
		&req.Destination.Lat,
		&req.Destination.Lon,
		&homeLat,
		&homeLon,
		&req.Waiting,
		&requestedAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if homeLat.Valid && homeLon.Valid {
		req.Home = &domain.Location{Lat: homeLat.Float64, Lon: homeLon.Float64}
	}
	if requestedAt.Valid {
		req.RequestedAt = requestedAt.Time
	}
	return &req, nil
}

func nullableLocation(loc *domain.Location) (sql.NullFloat64, sql.NullFloat64) {
	if loc == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: loc.Lat, Valid: true}, sql.NullFloat64{Float64: loc.Lon, Valid: true}
}
