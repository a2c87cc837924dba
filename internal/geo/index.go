package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const (
	metersPerDegree = earthRadiusMeters * math.Pi / 180
	maxPrecision    = 12
	// Widen the longitude requirement so the neighbour ring still covers
	// the radius once meridians converge inside a cell.
	lonSafetyFactor = 1.1
	// Above this latitude geohash cells degenerate; the index scans instead.
	maxIndexedLatitude = 85.0
)

// Point is a candidate position held by an Index.
type Point struct {
	ID  string
	Lat float64
	Lon float64
}

// Index is an arena of candidate points bucketed by geohash cell.
// Positions in the arena follow insertion order, which is also the
// tie-break order when two candidates are equally near.
// An Index is not safe for concurrent use.
type Index struct {
	radius    float64
	precision uint
	points    []Point
	taken     []bool
	cells     map[string][]int
	remaining int
}

// NewIndex builds an index over points for nearest-within-radius queries.
func NewIndex(points []Point, radiusMeters float64) *Index {
	idx := &Index{
		radius:    radiusMeters,
		points:    points,
		taken:     make([]bool, len(points)),
		remaining: len(points),
	}

	maxLat := 0.0
	for _, p := range points {
		maxLat = math.Max(maxLat, math.Abs(p.Lat))
	}
	idx.precision = precisionFor(radiusMeters, maxLat)
	if idx.precision == 0 {
		return idx
	}

	idx.cells = make(map[string][]int)
	for i, p := range points {
		cell := geohash.EncodeWithPrecision(p.Lat, p.Lon, idx.precision)
		idx.cells[cell] = append(idx.cells[cell], i)
	}
	return idx
}

// Len returns the number of points not yet taken.
func (idx *Index) Len() int {
	return idx.remaining
}

// Precision returns the geohash precision in use, or 0 when the index scans linearly.
func (idx *Index) Precision() uint {
	return idx.precision
}

// Nearest returns the arena position of the closest untaken point within the
// radius of (lat, lon), together with its distance. Ties go to the earliest
// inserted point. ok is false when no point qualifies.
func (idx *Index) Nearest(lat, lon float64) (pos int, meters float64, ok bool) {
	pos = -1
	meters = math.Inf(1)

	consider := func(i int) {
		if idx.taken[i] {
			return
		}
		p := idx.points[i]
		d := Distance(lat, lon, p.Lat, p.Lon)
		if d > idx.radius {
			return
		}
		if d < meters || (d == meters && i < pos) {
			pos, meters = i, d
		}
	}

	if idx.precision == 0 || !covers(idx.precision, idx.radius, math.Abs(lat)) {
		for i := range idx.points {
			consider(i)
		}
	} else {
		cell := geohash.EncodeWithPrecision(lat, lon, idx.precision)
		for _, c := range append([]string{cell}, geohash.Neighbors(cell)...) {
			for _, i := range idx.cells[c] {
				consider(i)
			}
		}
	}

	if pos < 0 {
		return -1, 0, false
	}
	return pos, meters, true
}

// Point returns the point stored at pos.
func (idx *Index) Point(pos int) Point {
	return idx.points[pos]
}

// Take removes the point at pos from future queries.
func (idx *Index) Take(pos int) {
	if idx.taken[pos] {
		return
	}
	idx.taken[pos] = true
	idx.remaining--
}

// precisionFor returns the finest geohash precision whose cell plus its
// eight neighbours contains every point within radius of a query point at up to
// maxLat degrees of latitude. Zero means no precision qualifies.
func precisionFor(radius, maxLat float64) uint {
	if radius < 0 || math.IsNaN(radius) {
		return 0
	}
	for p := uint(maxPrecision); p >= 1; p-- {
		if covers(p, radius, maxLat) {
			return p
		}
	}
	return 0
}

func covers(precision uint, radius, absLat float64) bool {
	latDeg, lonDeg := cellSize(precision)
	worstLat := absLat + radius/metersPerDegree
	if worstLat >= maxIndexedLatitude {
		return false
	}
	height := latDeg * metersPerDegree
	width := lonDeg * metersPerDegree * math.Cos(degreesToRadians(worstLat))
	return height >= radius && width >= radius*lonSafetyFactor
}

// cellSize returns the latitude and longitude extent in degrees of a geohash
// cell. Longitude takes the odd bit of each five-bit character pair.
func cellSize(precision uint) (latDeg, lonDeg float64) {
	bits := 5 * precision
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Exp2(float64(latBits)), 360 / math.Exp2(float64(lonBits))
}
