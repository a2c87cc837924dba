package postgres

import (
	"context"
	"database/sql"
	"time"

	"cabdispatch/internal/domain"
)

const vehicleColumns = `id, name, email, phone, license_number, cab_number, lat, lon, available, created_at`

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sql.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

// Create adds a new vehicle.
func (r *VehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `INSERT INTO vehicles (` + vehicleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.ExecContext(ctx, query,
		vehicle.ID,
		vehicle.Name,
		vehicle.Email,
		vehicle.Phone,
		vehicle.LicenseNumber,
		vehicle.CabNumber,
		vehicle.Position.Lat,
		vehicle.Position.Lon,
		vehicle.Available,
		vehicle.CreatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND retired_at IS NULL`
	return r.getOne(ctx, query, id)
}

// GetForUpdate retrieves a vehicle and locks its row until the transaction ends.
func (r *VehicleRepository) GetForUpdate(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND retired_at IS NULL FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *VehicleRepository) getOne(ctx context.Context, query, id string) (*domain.Vehicle, error) {
	vehicle, err := scanVehicle(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return vehicle, nil
}

// GetAll retrieves all vehicles that have not been retired.
func (r *VehicleRepository) GetAll(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.list(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE retired_at IS NULL ORDER BY id`)
}

// ListAvailable retrieves vehicles that can take a ride, ordered by ID.
func (r *VehicleRepository) ListAvailable(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.list(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE available = TRUE AND retired_at IS NULL ORDER BY id`)
}

func (r *VehicleRepository) list(ctx context.Context, query string) ([]*domain.Vehicle, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, rows.Err()
}

// MarkAvailable sets the availability flag of a vehicle.
func (r *VehicleRepository) MarkAvailable(ctx context.Context, id string, available bool) error {
	query := `UPDATE vehicles SET available = $1 WHERE id = $2 AND retired_at IS NULL`
	return expectOneRow(r.q.ExecContext(ctx, query, available, id))
}

// UpdatePosition moves a vehicle.
func (r *VehicleRepository) UpdatePosition(ctx context.Context, id string, position domain.Location) error {
	query := `UPDATE vehicles SET lat = $1, lon = $2 WHERE id = $3 AND retired_at IS NULL`
	return expectOneRow(r.q.ExecContext(ctx, query, position.Lat, position.Lon, id))
}

// Update replaces the registration details of a vehicle. Availability and
// position have their own writers.
func (r *VehicleRepository) Update(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `
		UPDATE vehicles
		SET name = $1, email = $2, phone = $3, license_number = $4, cab_number = $5
		WHERE id = $6 AND retired_at IS NULL
	`
	return expectOneRow(r.q.ExecContext(ctx, query,
		vehicle.Name,
		vehicle.Email,
		vehicle.Phone,
		vehicle.LicenseNumber,
		vehicle.CabNumber,
		vehicle.ID,
	))
}

// Retire hides a vehicle from every read. The row stays so that assignment
// history keeps its reference.
func (r *VehicleRepository) Retire(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE vehicles SET retired_at = $1 WHERE id = $2 AND retired_at IS NULL`
	return expectOneRow(r.q.ExecContext(ctx, query, at, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.Email,
		&v.Phone,
		&v.LicenseNumber,
		&v.CabNumber,
		&v.Position.Lat,
		&v.Position.Lon,
		&v.Available,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
