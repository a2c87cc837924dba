package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/geo"
	"cabdispatch/internal/repository"
	"cabdispatch/internal/repository/memory"
)

func TestRunBatch_SamePointAssigns(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "R", mgRoad, baseTime)

	report, err := newTestEngine(store).RunBatch(ctx)
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)
	assert.Empty(t, report.Deferred)
	assert.NoError(t, report.Err())

	a := report.Assignments[0]
	assert.Equal(t, "V", a.VehicleID)
	assert.Equal(t, "R", a.RequestID)
	assert.Equal(t, domain.AssignmentStatusPending, a.Status)
	assert.Equal(t, domain.AssignmentSourceBatch, a.Source)
	assert.Zero(t, a.DistanceMeters)
	assert.Nil(t, a.CompletedAt)
	assert.False(t, a.AssignedAt.IsZero())

	v, err := store.Vehicles().GetByID(ctx, "V")
	require.NoError(t, err)
	assert.False(t, v.Available)

	r, err := store.Requests().GetByID(ctx, "R")
	require.NoError(t, err)
	assert.False(t, r.Waiting)

	assertFleetConsistent(t, store)
}

func TestRunBatch_BeyondThresholdDefers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "R", lalbagh, baseTime)

	report, err := newTestEngine(store).RunBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Assignments)
	assert.Equal(t, []string{"R"}, report.Deferred)

	r, err := store.Requests().GetByID(ctx, "R")
	require.NoError(t, err)
	assert.True(t, r.Waiting)

	v, err := store.Vehicles().GetByID(ctx, "V")
	require.NoError(t, err)
	assert.True(t, v.Available)
}

func TestRunBatch_OldestRequestPicksFirst(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "late", mgRoad, baseTime.Add(time.Minute))
	addWaiting(t, store, "early", offset(mgRoad, 60), baseTime)

	report, err := newTestEngine(store).RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "early", report.Assignments[0].RequestID)
	assert.Equal(t, []string{"late"}, report.Deferred)
}

func TestRunBatch_PicksNearestWithinThreshold(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "far", offset(mgRoad, 90))
	addVehicle(t, store, "near", offset(mgRoad, 20))
	addVehicle(t, store, "out", offset(mgRoad, 150))
	addWaiting(t, store, "R", mgRoad, baseTime)

	report, err := newTestEngine(store).RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "near", report.Assignments[0].VehicleID)
	assert.InDelta(t, 20, report.Assignments[0].DistanceMeters, 0.5)
}

func TestRunBatch_EquidistantTieGoesToFirstInSnapshot(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "b", mgRoad)
	addVehicle(t, store, "a", mgRoad)
	addWaiting(t, store, "R", mgRoad, baseTime)

	report, err := newTestEngine(store).RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "a", report.Assignments[0].VehicleID)
}

func TestRunBatch_VehicleUsedOncePerPass(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "R1", mgRoad, baseTime)
	addWaiting(t, store, "R2", mgRoad, baseTime.Add(time.Second))

	report, err := newTestEngine(store).RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "R1", report.Assignments[0].RequestID)
	assert.Equal(t, []string{"R2"}, report.Deferred)
	assertFleetConsistent(t, store)
}

func TestRunBatch_EveryAssignmentWithinThreshold(t *testing.T) {
	store := memory.NewStore()
	for i, m := range []float64{0, 40, 80, 120, 200, 500} {
		addVehicle(t, store, string(rune('a'+i)), offset(mgRoad, m))
	}
	for i, m := range []float64{10, 30, 95, 300, 450, 1000} {
		addWaiting(t, store, string(rune('p'+i)), offset(mgRoad, m), baseTime.Add(time.Duration(i)*time.Second))
	}

	report, err := newTestEngine(store).RunBatch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Assignments)

	ctx := context.Background()
	seen := map[string]bool{}
	for _, a := range report.Assignments {
		v, err := store.Vehicles().GetByID(ctx, a.VehicleID)
		require.NoError(t, err)
		r, err := store.Requests().GetByID(ctx, a.RequestID)
		require.NoError(t, err)

		d := geo.Distance(v.Position.Lat, v.Position.Lon, r.Position.Lat, r.Position.Lon)
		assert.LessOrEqual(t, d, DefaultMatchThresholdMeters)
		assert.False(t, seen[a.VehicleID], "vehicle %s assigned twice", a.VehicleID)
		seen[a.VehicleID] = true
	}
	assert.Equal(t, report.Requests, len(report.Assignments)+len(report.Deferred))
	assertFleetConsistent(t, store)
}

func TestRunBatch_RerunIsNoop(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "R", mgRoad, baseTime)
	engine := newTestEngine(store)

	_, err := engine.RunBatch(context.Background())
	require.NoError(t, err)

	report, err := engine.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Assignments)
	assert.Zero(t, report.Requests)
}

func TestRunBatch_RejectsOverlappingRun(t *testing.T) {
	engine := newTestEngine(memory.NewStore())
	engine.running.Store(true)

	_, err := engine.RunBatch(context.Background())
	assert.ErrorIs(t, err, ErrBatchInProgress)

	engine.running.Store(false)
	_, err = engine.RunBatch(context.Background())
	assert.NoError(t, err)
}

func TestRunBatch_DeadlineDefersRemaining(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V1", mgRoad)
	addVehicle(t, store, "V2", lalbagh)
	addWaiting(t, store, "R1", mgRoad, baseTime)
	addWaiting(t, store, "R2", lalbagh, baseTime.Add(time.Second))

	engine := NewMatchingEngine(store, MatchingConfig{Deadline: time.Minute}, nullLogger())
	calls := 0
	engine.now = func() time.Time {
		calls++
		// Start, first deadline check, assignedAt for R1, then past the deadline.
		if calls <= 3 {
			return baseTime
		}
		return baseTime.Add(2 * time.Minute)
	}

	report, err := engine.RunBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Stopped)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "R1", report.Assignments[0].RequestID)
	assert.Equal(t, []string{"R2"}, report.Deferred)
	assertFleetConsistent(t, store)
}

func TestRunBatch_CancelledContextStops(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "R", mgRoad, baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(store).RunBatch(ctx)
	require.NoError(t, err)
	assert.True(t, report.Stopped)
	assert.Empty(t, report.Assignments)
	assert.Equal(t, []string{"R"}, report.Deferred)
}

// staleStore serves a vehicle snapshot that ignores availability, as if
// another worker claimed a vehicle between the snapshot and the claim.
type staleStore struct {
	*memory.Store
}

func (s staleStore) Vehicles() repository.VehicleRepository {
	return staleVehicles{s.Store.Vehicles()}
}

type staleVehicles struct {
	repository.VehicleRepository
}

func (v staleVehicles) ListAvailable(ctx context.Context) ([]*domain.Vehicle, error) {
	return v.GetAll(ctx)
}

func TestRunBatch_SkipsVehicleClaimedAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	addVehicle(t, mem, "taken", mgRoad)
	addVehicle(t, mem, "spare", offset(mgRoad, 50))
	addWaiting(t, mem, "R", mgRoad, baseTime)
	require.NoError(t, mem.Vehicles().MarkAvailable(ctx, "taken", false))

	report, err := newTestEngine(staleStore{mem}).RunBatch(ctx)
	require.NoError(t, err)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "spare", report.Assignments[0].VehicleID)
	assert.Empty(t, report.Failures)
}

// failingStore fails assignment writes for one rider.
type failingStore struct {
	*memory.Store
	failFor string
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return fn(ctx, failingRepos{Repositories: repos, failFor: s.failFor})
	})
}

type failingRepos struct {
	repository.Repositories
	failFor string
}

func (r failingRepos) Assignments() repository.AssignmentRepository {
	return failingAssignments{AssignmentRepository: r.Repositories.Assignments(), failFor: r.failFor}
}

type failingAssignments struct {
	repository.AssignmentRepository
	failFor string
}

var errDiskFull = errors.New("disk full")

func (a failingAssignments) Create(ctx context.Context, assignment *domain.RideAssignment) error {
	if assignment.RequestID == a.failFor {
		return errDiskFull
	}
	return a.AssignmentRepository.Create(ctx, assignment)
}

func TestRunBatch_IsolatesPerRequestFailures(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	addVehicle(t, mem, "V1", mgRoad)
	addVehicle(t, mem, "V2", lalbagh)
	addWaiting(t, mem, "bad", mgRoad, baseTime)
	addWaiting(t, mem, "good", lalbagh, baseTime.Add(time.Second))

	report, err := newTestEngine(failingStore{Store: mem, failFor: "bad"}).RunBatch(ctx)
	require.NoError(t, err)

	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "good", report.Assignments[0].RequestID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bad", report.Failures[0].RequestID)
	assert.ErrorIs(t, report.Err(), errDiskFull)

	// The failed claim left no partial writes behind.
	v, err := mem.Vehicles().GetByID(ctx, "V1")
	require.NoError(t, err)
	assert.True(t, v.Available)
	r, err := mem.Requests().GetByID(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, r.Waiting)
	assertFleetConsistent(t, mem)
}

func TestForceAssign_SkipsDistanceCheck(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addWaiting(t, store, "R", lalbagh, baseTime)

	a, err := newTestEngine(store).ForceAssign(context.Background(), "V", "R")
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentSourceForce, a.Source)
	assert.Equal(t, domain.AssignmentStatusPending, a.Status)
	assert.Greater(t, a.DistanceMeters, DefaultMatchThresholdMeters)
	assertFleetConsistent(t, store)
}

func TestForceAssign_Errors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	addVehicle(t, store, "busy", mgRoad)
	addWaiting(t, store, "R", mgRoad, baseTime)
	require.NoError(t, store.Requests().Create(ctx, &domain.RideRequest{ID: "idle", Position: mgRoad}))
	engine := newTestEngine(store)

	_, err := engine.ForceAssign(ctx, "ghost", "R")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.ForceAssign(ctx, "V", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.ForceAssign(ctx, "V", "idle")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = engine.ForceAssign(ctx, "busy", "R")
	require.NoError(t, err)
	addWaiting(t, store, "R2", mgRoad, baseTime)
	_, err = engine.ForceAssign(ctx, "busy", "R2")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = engine.ForceAssign(ctx, "", "R")
	assert.ErrorIs(t, err, ErrInvalidVehicleID)
	_, err = engine.ForceAssign(ctx, "V", "")
	assert.ErrorIs(t, err, ErrInvalidRiderID)

	// Rejected calls left V untouched.
	v, err := store.Vehicles().GetByID(ctx, "V")
	require.NoError(t, err)
	assert.True(t, v.Available)
	assertFleetConsistent(t, store)
}

func TestForceAssign_ConcurrentClaimsOnOneVehicle(t *testing.T) {
	store := memory.NewStore()
	addVehicle(t, store, "V", mgRoad)
	const riders = 20
	for i := 0; i < riders; i++ {
		addWaiting(t, store, string(rune('A'+i)), mgRoad, baseTime)
	}
	engine := newTestEngine(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := engine.ForceAssign(context.Background(), "V", id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			}
		}(string(rune('A' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, riders-1, conflicts)
	assertFleetConsistent(t, store)
}

func TestForceAssign_RacesBatchWithoutDoubleBooking(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		addVehicle(t, store, id, mgRoad)
		addWaiting(t, store, "r"+id, mgRoad, baseTime.Add(time.Duration(i)*time.Second))
		addWaiting(t, store, "f"+id, mgRoad, baseTime.Add(time.Hour))
	}
	engine := newTestEngine(store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := engine.RunBatch(context.Background())
		assert.NoError(t, err)
	}()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = engine.ForceAssign(context.Background(), id, "f"+id)
		}(string(rune('a' + i)))
	}
	wg.Wait()

	all, err := store.Assignments().GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assertFleetConsistent(t, store)
}
