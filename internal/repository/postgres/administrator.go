package postgres

import (
	"context"
	"database/sql"

	"cabdispatch/internal/domain"
)

// AdministratorRepository is a PostgreSQL implementation of repository.AdministratorRepository.
type AdministratorRepository struct {
	q Querier
}

// NewAdministratorRepository creates a new PostgreSQL administrator repository.
func NewAdministratorRepository(db *sql.DB) *AdministratorRepository {
	return &AdministratorRepository{q: db}
}

// Create adds a new administrator.
func (r *AdministratorRepository) Create(ctx context.Context, admin *domain.Administrator) error {
	query := `INSERT INTO administrators (id, name, email, phone, employee_id, department, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.ExecContext(ctx, query,
		admin.ID,
		admin.Name,
		admin.Email,
		admin.Phone,
		admin.EmployeeID,
		admin.Department,
		admin.CreatedAt,
	)
	return mapWriteError(err)
}

// GetAll retrieves all administrators.
func (r *AdministratorRepository) GetAll(ctx context.Context) ([]*domain.Administrator, error) {
	query := `SELECT id, name, email, phone, employee_id, department, created_at FROM administrators ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []*domain.Administrator
	for rows.Next() {
		var a domain.Administrator
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.EmployeeID, &a.Department, &a.CreatedAt); err != nil {
			return nil, err
		}
		admins = append(admins, &a)
	}
	return admins, rows.Err()
}
