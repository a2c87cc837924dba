// Package memory is an in-process implementation of repository.Store.
// A single mutex serialises every operation; WithinTx holds it for the whole
// unit and rolls back through an undo journal when the unit fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/repository"
)

// Store keeps every entity in maps keyed by ID.
type Store struct {
	mu          sync.Mutex
	vehicles    map[string]*domain.Vehicle
	requests    map[string]*domain.RideRequest
	assignments map[string]*domain.RideAssignment
	admins      map[string]*domain.Administrator

	// Retired records leave the live maps but stay addressable by history.
	retiredVehicles map[string]*domain.Vehicle
	retiredRequests map[string]*domain.RideRequest
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		vehicles:    make(map[string]*domain.Vehicle),
		requests:    make(map[string]*domain.RideRequest),
		assignments: make(map[string]*domain.RideAssignment),
		admins:      make(map[string]*domain.Administrator),

		retiredVehicles: make(map[string]*domain.Vehicle),
		retiredRequests: make(map[string]*domain.RideRequest),
	}
}

var _ repository.Store = (*Store)(nil)

// session is the view handed to repositories. Outside a transaction it takes
// the store lock per call; inside one the lock is already held.
type session struct {
	s    *Store
	inTx bool
	undo []func()
}

func (x *session) lock() func() {
	if x.inTx {
		return func() {}
	}
	x.s.mu.Lock()
	return x.s.mu.Unlock
}

func (x *session) journal(fn func()) {
	if x.inTx {
		x.undo = append(x.undo, fn)
	}
}

func (s *Store) plain() *session { return &session{s: s} }

func (s *Store) Vehicles() repository.VehicleRepository { return &vehicleRepo{s.plain()} }

func (s *Store) Requests() repository.RequestRepository { return &requestRepo{s.plain()} }

func (s *Store) Assignments() repository.AssignmentRepository { return &assignmentRepo{s.plain()} }

func (s *Store) Administrators() repository.AdministratorRepository { return &adminRepo{s.plain()} }

// WithinTx runs fn while holding the store lock. fn must not call back into
// the Store itself, only into repos.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &session{s: s, inTx: true}
	if err := fn(ctx, txRepos{tx}); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

type txRepos struct{ x *session }

func (t txRepos) Vehicles() repository.VehicleRepository       { return &vehicleRepo{t.x} }
func (t txRepos) Requests() repository.RequestRepository       { return &requestRepo{t.x} }
func (t txRepos) Assignments() repository.AssignmentRepository { return &assignmentRepo{t.x} }

// ──────────────────────────────────────────────
// VEHICLES
// ──────────────────────────────────────────────

type vehicleRepo struct{ x *session }

func (r *vehicleRepo) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	defer r.x.lock()()
	if _, ok := r.x.s.vehicles[vehicle.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := r.x.s.retiredVehicles[vehicle.ID]; ok {
		return repository.ErrConflict
	}
	cp := *vehicle
	r.x.s.vehicles[vehicle.ID] = &cp
	r.x.journal(func() { delete(r.x.s.vehicles, vehicle.ID) })
	return nil
}

func (r *vehicleRepo) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	defer r.x.lock()()
	v, ok := r.x.s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *vehicleRepo) GetForUpdate(ctx context.Context, id string) (*domain.Vehicle, error) {
	return r.GetByID(ctx, id)
}

func (r *vehicleRepo) GetAll(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.list(func(*domain.Vehicle) bool { return true }), nil
}

func (r *vehicleRepo) ListAvailable(ctx context.Context) ([]*domain.Vehicle, error) {
	return r.list(func(v *domain.Vehicle) bool { return v.Available }), nil
}

func (r *vehicleRepo) list(keep func(*domain.Vehicle) bool) []*domain.Vehicle {
	defer r.x.lock()()
	result := make([]*domain.Vehicle, 0, len(r.x.s.vehicles))
	for _, v := range r.x.s.vehicles {
		if keep(v) {
			cp := *v
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *vehicleRepo) MarkAvailable(ctx context.Context, id string, available bool) error {
	defer r.x.lock()()
	v, ok := r.x.s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	prev := v.Available
	v.Available = available
	r.x.journal(func() { v.Available = prev })
	return nil
}

func (r *vehicleRepo) UpdatePosition(ctx context.Context, id string, position domain.Location) error {
	defer r.x.lock()()
	v, ok := r.x.s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	prev := v.Position
	v.Position = position
	r.x.journal(func() { v.Position = prev })
	return nil
}

func (r *vehicleRepo) Update(ctx context.Context, vehicle *domain.Vehicle) error {
	defer r.x.lock()()
	v, ok := r.x.s.vehicles[vehicle.ID]
	if !ok {
		return repository.ErrNotFound
	}
	prev := *v
	v.Contact = vehicle.Contact
	v.LicenseNumber = vehicle.LicenseNumber
	v.CabNumber = vehicle.CabNumber
	r.x.journal(func() { *v = prev })
	return nil
}

func (r *vehicleRepo) Retire(ctx context.Context, id string, at time.Time) error {
	defer r.x.lock()()
	v, ok := r.x.s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.x.s.vehicles, id)
	r.x.s.retiredVehicles[id] = v
	r.x.journal(func() {
		delete(r.x.s.retiredVehicles, id)
		r.x.s.vehicles[id] = v
	})
	return nil
}

// ──────────────────────────────────────────────
// RIDE REQUESTS
// ──────────────────────────────────────────────

type requestRepo struct{ x *session }

func copyRequest(req *domain.RideRequest) *domain.RideRequest {
	cp := *req
	if req.Home != nil {
		home := *req.Home
		cp.Home = &home
	}
	return &cp
}

func (r *requestRepo) Create(ctx context.Context, request *domain.RideRequest) error {
	defer r.x.lock()()
	if _, ok := r.x.s.requests[request.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := r.x.s.retiredRequests[request.ID]; ok {
		return repository.ErrConflict
	}
	r.x.s.requests[request.ID] = copyRequest(request)
	r.x.journal(func() { delete(r.x.s.requests, request.ID) })
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	defer r.x.lock()()
	req, ok := r.x.s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRequest(req), nil
}

func (r *requestRepo) GetForUpdate(ctx context.Context, id string) (*domain.RideRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *requestRepo) GetAll(ctx context.Context) ([]*domain.RideRequest, error) {
	defer r.x.lock()()
	result := make([]*domain.RideRequest, 0, len(r.x.s.requests))
	for _, req := range r.x.s.requests {
		result = append(result, copyRequest(req))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *requestRepo) ListWaiting(ctx context.Context) ([]*domain.RideRequest, error) {
	defer r.x.lock()()
	var result []*domain.RideRequest
	for _, req := range r.x.s.requests {
		if req.Waiting {
			result = append(result, copyRequest(req))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].RequestedAt.Before(result[j].RequestedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *requestRepo) MarkWaiting(ctx context.Context, id string, waiting bool) error {
	defer r.x.lock()()
	req, ok := r.x.s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	prev := req.Waiting
	req.Waiting = waiting
	r.x.journal(func() { req.Waiting = prev })
	return nil
}

func (r *requestRepo) Update(ctx context.Context, request *domain.RideRequest) error {
	defer r.x.lock()()
	prev, ok := r.x.s.requests[request.ID]
	if !ok {
		return repository.ErrNotFound
	}
	r.x.s.requests[request.ID] = copyRequest(request)
	r.x.journal(func() { r.x.s.requests[request.ID] = prev })
	return nil
}

func (r *requestRepo) Retire(ctx context.Context, id string, at time.Time) error {
	defer r.x.lock()()
	req, ok := r.x.s.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	wasWaiting := req.Waiting
	req.Waiting = false
	delete(r.x.s.requests, id)
	r.x.s.retiredRequests[id] = req
	r.x.journal(func() {
		req.Waiting = wasWaiting
		delete(r.x.s.retiredRequests, id)
		r.x.s.requests[id] = req
	})
	return nil
}

// ──────────────────────────────────────────────
// ASSIGNMENTS
// ──────────────────────────────────────────────

type assignmentRepo struct{ x *session }

func copyAssignment(a *domain.RideAssignment) *domain.RideAssignment {
	cp := *a
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func (r *assignmentRepo) Create(ctx context.Context, assignment *domain.RideAssignment) error {
	defer r.x.lock()()
	if _, ok := r.x.s.assignments[assignment.ID]; ok {
		return repository.ErrConflict
	}
	if assignment.Active() {
		for _, other := range r.x.s.assignments {
			if other.Active() && (other.VehicleID == assignment.VehicleID || other.RequestID == assignment.RequestID) {
				return repository.ErrConflict
			}
		}
	}
	r.x.s.assignments[assignment.ID] = copyAssignment(assignment)
	r.x.journal(func() { delete(r.x.s.assignments, assignment.ID) })
	return nil
}

func (r *assignmentRepo) FindByID(ctx context.Context, id string) (*domain.RideAssignment, error) {
	defer r.x.lock()()
	a, ok := r.x.s.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAssignment(a), nil
}

func (r *assignmentRepo) FindForUpdate(ctx context.Context, id string) (*domain.RideAssignment, error) {
	return r.FindByID(ctx, id)
}

func (r *assignmentRepo) Save(ctx context.Context, assignment *domain.RideAssignment) error {
	defer r.x.lock()()
	prev, ok := r.x.s.assignments[assignment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	r.x.s.assignments[assignment.ID] = copyAssignment(assignment)
	r.x.journal(func() { r.x.s.assignments[assignment.ID] = prev })
	return nil
}

func (r *assignmentRepo) GetAll(ctx context.Context) ([]*domain.RideAssignment, error) {
	return r.list(func(*domain.RideAssignment) bool { return true }), nil
}

func (r *assignmentRepo) ListByVehicle(ctx context.Context, vehicleID string, statuses ...domain.AssignmentStatus) ([]*domain.RideAssignment, error) {
	return r.list(func(a *domain.RideAssignment) bool {
		return a.VehicleID == vehicleID && hasStatus(a.Status, statuses)
	}), nil
}

func (r *assignmentRepo) ListByRequest(ctx context.Context, requestID string, statuses ...domain.AssignmentStatus) ([]*domain.RideAssignment, error) {
	return r.list(func(a *domain.RideAssignment) bool {
		return a.RequestID == requestID && hasStatus(a.Status, statuses)
	}), nil
}

func (r *assignmentRepo) list(keep func(*domain.RideAssignment) bool) []*domain.RideAssignment {
	defer r.x.lock()()
	var result []*domain.RideAssignment
	for _, a := range r.x.s.assignments {
		if keep(a) {
			result = append(result, copyAssignment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].AssignedAt.Equal(result[j].AssignedAt) {
			return result[i].AssignedAt.After(result[j].AssignedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func hasStatus(s domain.AssignmentStatus, statuses []domain.AssignmentStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// ADMINISTRATORS
// ──────────────────────────────────────────────

type adminRepo struct{ x *session }

func (r *adminRepo) Create(ctx context.Context, admin *domain.Administrator) error {
	defer r.x.lock()()
	if _, ok := r.x.s.admins[admin.ID]; ok {
		return repository.ErrConflict
	}
	cp := *admin
	r.x.s.admins[admin.ID] = &cp
	return nil
}

func (r *adminRepo) GetAll(ctx context.Context) ([]*domain.Administrator, error) {
	defer r.x.lock()()
	result := make([]*domain.Administrator, 0, len(r.x.s.admins))
	for _, a := range r.x.s.admins {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
