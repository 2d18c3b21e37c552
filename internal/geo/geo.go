// Package geo provides the small set of spherical geometry primitives the
// trajectory analyzers need: great-circle distance, heading, centroids,
// polyline crossing detection and polygon containment.
package geo

import "math"

// EarthRadiusMeters is the mean earth radius used for haversine distances.
const EarthRadiusMeters = 6371008.8

// Point is a 2D WGS84 coordinate.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// HeadingDegrees returns the initial bearing from a to b in [0, 360).
func HeadingDegrees(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Centroid returns the arithmetic centroid of the points. The zero Point is
// returned for an empty slice.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lon, lat float64
	for _, p := range points {
		lon += p.Lon
		lat += p.Lat
	}
	n := float64(len(points))
	return Point{Lon: lon / n, Lat: lat / n}
}

// Polyline is an ordered sequence of vertices.
type Polyline []Point

// Polygon is a closed ring of vertices. The closing vertex may be omitted.
type Polygon []Point

// SegmentIntersection returns the intersection point of segments a1-a2 and
// b1-b2, using planar interpolation in lon/lat space. Trajectory legs and
// fence spans are short enough that the planar approximation holds.
func SegmentIntersection(a1, a2, b1, b2 Point) (Point, bool) {
	d1x := a2.Lon - a1.Lon
	d1y := a2.Lat - a1.Lat
	d2x := b2.Lon - b1.Lon
	d2y := b2.Lat - b1.Lat

	denom := d1x*d2y - d1y*d2x
	if denom == 0 {
		// Parallel or degenerate.
		return Point{}, false
	}

	t := ((b1.Lon-a1.Lon)*d2y - (b1.Lat-a1.Lat)*d2x) / denom
	u := ((b1.Lon-a1.Lon)*d1y - (b1.Lat-a1.Lat)*d1x) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return Point{Lon: a1.Lon + t*d1x, Lat: a1.Lat + t*d1y}, true
}

// CrossesPolyline reports the first crossing of segment p1-p2 with the
// polyline, if any.
func CrossesPolyline(p1, p2 Point, line Polyline) (Point, bool) {
	for i := 1; i < len(line); i++ {
		if pt, ok := SegmentIntersection(p1, p2, line[i-1], line[i]); ok {
			return pt, true
		}
	}
	return Point{}, false
}

// Contains reports whether the polygon contains the point, by ray casting.
// Points exactly on the boundary are not guaranteed a consistent answer.
func (pg Polygon) Contains(p Point) bool {
	n := len(pg)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := pg[i], pg[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lon < (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}
