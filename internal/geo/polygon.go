package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// metersPerDegree is the flat-earth length of one degree of latitude.
const metersPerDegree = 111000.0

// Centroid returns the arithmetic mean of the vertices. It is not area
// weighted. Both open and closed rings are accepted.
func Centroid(points []Coordinate) (Coordinate, error) {
	ring := openRing(points)
	if len(ring) == 0 {
		return Coordinate{}, fmt.Errorf("%w: centroid of empty point list", ErrInvalidGeometry)
	}
	if len(ring) == 1 {
		return ring[0], nil
	}

	var lat, lon float64
	for _, p := range ring {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(ring))
	return Coordinate{Lat: lat / n, Lon: lon / n}, nil
}

// Area approximates the enclosed area in square meters using the shoelace
// formula on a local equirectangular projection. Longitudes are scaled by the
// cosine of the mean latitude; at the equator this reduces to plain degree
// coordinates scaled by 111000². Relative error stays under 1% for footprints
// smaller than about 10 km up to 70° latitude.
func Area(points []Coordinate) float64 {
	ring := openRing(points)
	if len(ring) < 3 {
		return 0
	}

	var meanLat float64
	for _, p := range ring {
		meanLat += p.Lat
	}
	meanLat /= float64(len(ring))
	kx := metersPerDegree * math.Cos(meanLat*math.Pi/180)
	ky := metersPerDegree

	var sum float64
	for i := range ring {
		a := ring[i]
		b := ring[(i+1)%len(ring)]
		sum += (a.Lon*kx)*(b.Lat*ky) - (b.Lon*kx)*(a.Lat*ky)
	}
	return math.Abs(sum) / 2
}

// BoundsOf returns the bounding box of the points.
func BoundsOf(points []Coordinate) (Bounds, error) {
	if len(points) == 0 {
		return Bounds{}, fmt.Errorf("%w: bounds of empty point list", ErrInvalidGeometry)
	}

	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.Lon, p.Lat}
	}
	b := mp.Bound()

	return Bounds{
		MinLat: b.Bottom(),
		MaxLat: b.Top(),
		MinLon: b.Left(),
		MaxLon: b.Right(),
	}, nil
}

// IsValidPolygon reports whether there are enough vertices to form a polygon.
// It does not check for self-intersection.
func IsValidPolygon(points []Coordinate) bool {
	return len(openRing(points)) >= 3
}

// IsSelfIntersecting reports whether any two non-adjacent edges of the closed
// ring cross. Touching or collinear edges do not count.
func IsSelfIntersecting(points []Coordinate) bool {
	ring := openRing(points)
	n := len(ring)
	if n < 4 {
		return false
	}

	for i := 0; i < n; i++ {
		a1, a2 := ring[i], ring[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // shares the closing vertex with edge 0
			}
			b1, b2 := ring[j], ring[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// ContainsPoint applies the even-odd rule. Polygons with fewer than three
// vertices never contain anything.
func ContainsPoint(polygon []Coordinate, point Coordinate) bool {
	ring := openRing(polygon)
	if len(ring) < 3 {
		return false
	}
	return planar.RingContains(toRing(ring), orb.Point{point.Lon, point.Lat})
}

func segmentsCross(p1, p2, q1, q2 Coordinate) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// orientation is the z component of (b-a) x (c-a).
func orientation(a, b, c Coordinate) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}
