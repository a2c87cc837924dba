package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/repository"
)

// AdminService manages transport administrators.
type AdminService struct {
	admins repository.AdministratorRepository
	now    func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(admins repository.AdministratorRepository) *AdminService {
	return &AdminService{admins: admins, now: time.Now}
}

// RegisterAdministratorRequest contains the parameters for registering an administrator.
type RegisterAdministratorRequest struct {
	Contact    domain.Contact
	EmployeeID string
	Department string
}

// Register adds an administrator.
func (s *AdminService) Register(ctx context.Context, req RegisterAdministratorRequest) (*domain.Administrator, error) {
	if strings.TrimSpace(req.Contact.Name) == "" {
		return nil, ErrInvalidName
	}

	admin := &domain.Administrator{
		ID:         uuid.New().String(),
		Contact:    req.Contact,
		EmployeeID: req.EmployeeID,
		Department: req.Department,
		CreatedAt:  s.now(),
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// List retrieves all administrators.
func (s *AdminService) List(ctx context.Context) ([]*domain.Administrator, error) {
	return s.admins.GetAll(ctx)
}
