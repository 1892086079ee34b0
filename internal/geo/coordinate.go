// Package geo holds the geometry kernel used by tour planning: polygon
// encoding, centroid/area/bounds, containment and self-intersection tests, and
// great-circle distance estimates over ordered stop lists.
//
// Coordinates are degrees in WGS84. Nothing here validates ranges; callers that
// talk to external services do that themselves.
package geo

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned for malformed or insufficient point data.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String formats the coordinate as "lat,lon", the legacy point encoding.
func (c Coordinate) String() string {
	return fmt.Sprintf("%g,%g", c.Lat, c.Lon)
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains reports whether c lies inside or on the edge of the box.
func (b Bounds) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// openRing drops a trailing point equal to the first one.
func openRing(points []Coordinate) []Coordinate {
	if n := len(points); n > 1 && points[0] == points[n-1] {
		return points[:n-1]
	}
	return points
}
