// Package geo holds great-circle distance helpers and the spatial index used by the batch matcher.
package geo

import "math"

const earthRadiusMeters = 6371.0 * 1000

// Distance returns the great-circle distance in meters between two points
// given in decimal degrees, on a spherical earth of radius 6371 km.
// Coordinates are not validated.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(rLat1)*math.Cos(rLat2)*sinLon*sinLon
	// Rounding can push a slightly above 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Within reports whether two points are at most maxMeters apart.
func Within(lat1, lon1, lat2, lon2, maxMeters float64) bool {
	return Distance(lat1, lon1, lat2, lon2) <= maxMeters
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
