package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance_IdenticalPointsIsZero(t *testing.T) {
	points := [][2]float64{{0, 0}, {12.9716, 77.5946}, {-33.8688, 151.2093}, {89.9, -179.9}}
	for _, p := range points {
		assert.Equal(t, 0.0, Distance(p[0], p[1], p[0], p[1]))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{12.9716, 77.5946, 12.9667, 77.5667},
		{51.5074, -0.1278, 40.7128, -74.0060},
		{-1, 179.5, 1, -179.5},
	}
	for _, p := range pairs {
		assert.Equal(t, Distance(p[0], p[1], p[2], p[3]), Distance(p[2], p[3], p[0], p[1]))
	}
}

func TestDistance_KnownValues(t *testing.T) {
	// Bangalore sample points used throughout the dispatch tests, roughly 3 km apart.
	d := Distance(12.9716, 77.5946, 12.9667, 77.5667)
	assert.InDelta(t, 3070, d, 50)

	// One degree of latitude along a meridian.
	assert.InDelta(t, 111195, Distance(0, 0, 1, 0), 1)
}

func TestDistance_Antipodal(t *testing.T) {
	d := Distance(0, 0, 0, 180)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*earthRadiusMeters, d, 1)
}

func TestWithin(t *testing.T) {
	assert.True(t, Within(12.9716, 77.5946, 12.9716, 77.5946, 100))
	assert.False(t, Within(12.9716, 77.5946, 12.9667, 77.5667, 100))
}
