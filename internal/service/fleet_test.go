package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/repository/memory"
)

func TestFleet_RegisterVehicleStartsAvailable(t *testing.T) {
	ctx := context.Background()
	svc := NewFleetService(memory.NewStore(), nullLogger())

	v, err := svc.RegisterVehicle(ctx, RegisterVehicleRequest{
		Contact:       domain.Contact{Name: "Asha", Phone: "555-0101"},
		LicenseNumber: "KA-01-2020",
		CabNumber:     "CAB-7",
		Position:      mgRoad,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.True(t, v.Available)

	got, err := svc.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAB-7", got.CabNumber)
	assert.Equal(t, "Asha", got.Name)
}

func TestFleet_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewFleetService(memory.NewStore(), nullLogger())

	_, err := svc.RegisterVehicle(ctx, RegisterVehicleRequest{Position: mgRoad})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.RegisterVehicle(ctx, RegisterVehicleRequest{
		Contact:  domain.Contact{Name: "x"},
		Position: domain.Location{Lat: 91},
	})
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = svc.RegisterRider(ctx, RegisterRiderRequest{
		Contact:  domain.Contact{Name: "x"},
		Position: domain.Location{Lat: math.NaN()},
	})
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = svc.RegisterRider(ctx, RegisterRiderRequest{
		Contact:  domain.Contact{Name: "x"},
		Position: mgRoad,
		Home:     &domain.Location{Lon: 181},
	})
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestFleet_RequestRideQueuesRider(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewFleetService(store, nullLogger())
	svc.now = func() time.Time { return baseTime }

	rider, err := svc.RegisterRider(ctx, RegisterRiderRequest{Contact: domain.Contact{Name: "Ravi"}, Position: lalbagh})
	require.NoError(t, err)
	assert.False(t, rider.Waiting)

	queued, err := svc.RequestRide(ctx, rider.ID, mgRoad, lalbagh)
	require.NoError(t, err)
	assert.True(t, queued.Waiting)
	assert.Equal(t, baseTime, queued.RequestedAt)
	assert.Equal(t, mgRoad, queued.Position)
	assert.Equal(t, lalbagh, queued.Destination)

	waiting, err := store.Requests().ListWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, rider.ID, waiting[0].ID)
}

func TestFleet_RequestRideKeepsQueuePosition(t *testing.T) {
	ctx := context.Background()
	svc := NewFleetService(memory.NewStore(), nullLogger())
	svc.now = func() time.Time { return baseTime }

	rider, err := svc.RegisterRider(ctx, RegisterRiderRequest{Contact: domain.Contact{Name: "Ravi"}, Position: mgRoad})
	require.NoError(t, err)
	_, err = svc.RequestRide(ctx, rider.ID, mgRoad, lalbagh)
	require.NoError(t, err)

	svc.now = func() time.Time { return baseTime.Add(time.Hour) }
	again, err := svc.RequestRide(ctx, rider.ID, offset(mgRoad, 10), lalbagh)
	require.NoError(t, err)
	assert.True(t, again.Waiting)
	assert.Equal(t, baseTime, again.RequestedAt)
	assert.Equal(t, offset(mgRoad, 10), again.Position)
}

func TestFleet_RequestRideWhileAssignedConflicts(t *testing.T) {
	ctx := context.Background()
	store, a := assignedFixture(t)
	svc := NewFleetService(store, nullLogger())

	_, err := svc.RequestRide(ctx, a.RequestID, mgRoad, lalbagh)
	assert.ErrorIs(t, err, ErrConflict)

	r, err := store.Requests().GetByID(ctx, a.RequestID)
	require.NoError(t, err)
	assert.False(t, r.Waiting)

	// Position updates are still accepted mid-ride.
	moved, err := svc.UpdateRiderPosition(ctx, a.RequestID, lalbagh)
	require.NoError(t, err)
	assert.Equal(t, lalbagh, moved.Position)
	assert.False(t, moved.Waiting)
}

func TestFleet_RequestRideUnknownRider(t *testing.T) {
	svc := NewFleetService(memory.NewStore(), nullLogger())

	_, err := svc.RequestRide(context.Background(), "ghost", mgRoad, lalbagh)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RequestRide(context.Background(), "", mgRoad, lalbagh)
	assert.ErrorIs(t, err, ErrInvalidRiderID)
}

func TestFleet_PositionAndHome(t *testing.T) {
	ctx := context.Background()
	svc := NewFleetService(memory.NewStore(), nullLogger())

	v, err := svc.RegisterVehicle(ctx, RegisterVehicleRequest{Contact: domain.Contact{Name: "Asha"}, Position: mgRoad})
	require.NoError(t, err)
	moved, err := svc.UpdateVehiclePosition(ctx, v.ID, lalbagh)
	require.NoError(t, err)
	assert.Equal(t, lalbagh, moved.Position)

	_, err = svc.UpdateVehiclePosition(ctx, "ghost", lalbagh)
	assert.ErrorIs(t, err, ErrNotFound)

	rider, err := svc.RegisterRider(ctx, RegisterRiderRequest{Contact: domain.Contact{Name: "Ravi"}, Position: mgRoad})
	require.NoError(t, err)
	withHome, err := svc.SetHome(ctx, rider.ID, lalbagh)
	require.NoError(t, err)
	require.NotNil(t, withHome.Home)
	assert.Equal(t, lalbagh, *withHome.Home)

	riders, err := svc.ListRiders(ctx)
	require.NoError(t, err)
	assert.Len(t, riders, 1)
}

func TestFleet_UpdateVehicleLeavesAvailabilityAlone(t *testing.T) {
	ctx := context.Background()
	store, a := assignedFixture(t)
	svc := NewFleetService(store, nullLogger())

	updated, err := svc.UpdateVehicle(ctx, a.VehicleID, UpdateVehicleRequest{
		Contact:       domain.Contact{Name: "Asha K", Phone: "555-0199"},
		LicenseNumber: "KA-01-2024",
		CabNumber:     "CAB-8",
	})
	require.NoError(t, err)
	assert.Equal(t, "CAB-8", updated.CabNumber)
	assert.False(t, updated.Available)
	assert.Equal(t, mgRoad, updated.Position)

	got, err := svc.GetVehicle(ctx, a.VehicleID)
	require.NoError(t, err)
	assert.Equal(t, "Asha K", got.Name)
	assert.Equal(t, "KA-01-2024", got.LicenseNumber)
	assertFleetConsistent(t, store)

	_, err = svc.UpdateVehicle(ctx, a.VehicleID, UpdateVehicleRequest{})
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = svc.UpdateVehicle(ctx, "ghost", UpdateVehicleRequest{Contact: domain.Contact{Name: "x"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFleet_UpdateRiderContact(t *testing.T) {
	ctx := context.Background()
	svc := NewFleetService(memory.NewStore(), nullLogger())
	svc.now = func() time.Time { return baseTime }

	rider, err := svc.RegisterRider(ctx, RegisterRiderRequest{Contact: domain.Contact{Name: "Ravi"}, Position: mgRoad})
	require.NoError(t, err)
	_, err = svc.RequestRide(ctx, rider.ID, mgRoad, lalbagh)
	require.NoError(t, err)

	updated, err := svc.UpdateRider(ctx, rider.ID, domain.Contact{Name: "Ravi S", Email: "ravi@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", updated.Email)
	assert.True(t, updated.Waiting)
	assert.Equal(t, baseTime, updated.RequestedAt)

	_, err = svc.UpdateRider(ctx, rider.ID, domain.Contact{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestFleet_RetireRefusedWhileAssigned(t *testing.T) {
	ctx := context.Background()
	store, a := assignedFixture(t)
	svc := NewFleetService(store, nullLogger())

	assert.ErrorIs(t, svc.RetireVehicle(ctx, a.VehicleID), ErrConflict)
	assert.ErrorIs(t, svc.RetireRider(ctx, a.RequestID), ErrConflict)

	_, err := svc.GetVehicle(ctx, a.VehicleID)
	assert.NoError(t, err)
	_, err = svc.GetRider(ctx, a.RequestID)
	assert.NoError(t, err)
}

func TestFleet_RetireKeepsHistoryAndLeavesMatching(t *testing.T) {
	ctx := context.Background()
	store, a := assignedFixture(t)
	svc := NewFleetService(store, nullLogger())
	_, err := NewLifecycleService(store, nil, nullLogger()).Transition(ctx, a.ID, domain.AssignmentStatusCancelled)
	require.NoError(t, err)

	require.NoError(t, svc.RetireVehicle(ctx, a.VehicleID))
	require.NoError(t, svc.RetireRider(ctx, a.RequestID))

	_, err = svc.GetVehicle(ctx, a.VehicleID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetRider(ctx, a.RequestID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.RetireVehicle(ctx, a.VehicleID), ErrNotFound)

	history, err := store.Assignments().ListByVehicle(ctx, a.VehicleID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.AssignmentStatusCancelled, history[0].Status)

	addWaiting(t, store, "R2", mgRoad, baseTime)
	report, err := newTestEngine(store).RunBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Assignments)
}

func TestAdmin_RegisterAndList(t *testing.T) {
	ctx := context.Background()
	svc := NewAdminService(memory.NewStore().Administrators())

	_, err := svc.Register(ctx, RegisterAdministratorRequest{})
	assert.ErrorIs(t, err, ErrInvalidName)

	admin, err := svc.Register(ctx, RegisterAdministratorRequest{
		Contact:    domain.Contact{Name: "Priya"},
		EmployeeID: "E-42",
		Department: "Transport",
	})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, admin.ID, list[0].ID)
	assert.Equal(t, "E-42", list[0].EmployeeID)
}
