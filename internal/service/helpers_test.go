package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"cabdispatch/internal/domain"
	"cabdispatch/internal/repository"
)

var (
	mgRoad   = domain.Location{Lat: 12.9716, Lon: 77.5946}
	lalbagh  = domain.Location{Lat: 12.9667, Lon: 77.5667}
	baseTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
)

func nullLogger() logrus.FieldLogger {
	log, _ := logtest.NewNullLogger()
	return log
}

func addVehicle(t *testing.T, store repository.Store, id string, at domain.Location) {
	t.Helper()
	require.NoError(t, store.Vehicles().Create(context.Background(), &domain.Vehicle{
		ID:        id,
		Contact:   domain.Contact{Name: "driver " + id},
		Position:  at,
		Available: true,
		CreatedAt: baseTime,
	}))
}

func addWaiting(t *testing.T, store repository.Store, id string, at domain.Location, requestedAt time.Time) {
	t.Helper()
	require.NoError(t, store.Requests().Create(context.Background(), &domain.RideRequest{
		ID:          id,
		Contact:     domain.Contact{Name: "rider " + id},
		Position:    at,
		Waiting:     true,
		RequestedAt: requestedAt,
		CreatedAt:   baseTime,
	}))
}

func newTestEngine(store repository.Store) *MatchingEngine {
	return NewMatchingEngine(store, MatchingConfig{ThresholdMeters: DefaultMatchThresholdMeters}, nullLogger())
}

// offset returns a point roughly meters north of loc.
func offset(loc domain.Location, meters float64) domain.Location {
	return domain.Location{Lat: loc.Lat + meters/111195.0, Lon: loc.Lon}
}

// assertFleetConsistent checks that a vehicle is unavailable exactly when it
// holds one active assignment, and that waiting riders hold none.
func assertFleetConsistent(t *testing.T, store repository.Store) {
	t.Helper()
	ctx := context.Background()

	vehicles, err := store.Vehicles().GetAll(ctx)
	require.NoError(t, err)
	for _, v := range vehicles {
		active, err := store.Assignments().ListByVehicle(ctx, v.ID, domain.AssignmentStatusPending, domain.AssignmentStatusInProgress)
		require.NoError(t, err)
		require.LessOrEqual(t, len(active), 1, "vehicle %s has %d active assignments", v.ID, len(active))
		require.Equal(t, len(active) == 0, v.Available, "vehicle %s availability", v.ID)
	}

	riders, err := store.Requests().GetAll(ctx)
	require.NoError(t, err)
	for _, r := range riders {
		active, err := store.Assignments().ListByRequest(ctx, r.ID, domain.AssignmentStatusPending, domain.AssignmentStatusInProgress)
		require.NoError(t, err)
		if r.Waiting {
			require.Empty(t, active, "waiting rider %s has an active assignment", r.ID)
		}
	}
}

