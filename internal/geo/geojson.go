package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EncodePolygon encodes an open or closed ring as a GeoJSON Polygon geometry
// with a single closed outer ring in [lon, lat] order.
func EncodePolygon(points []Coordinate) (string, error) {
	ring := openRing(points)
	if len(ring) < 3 {
		return "", fmt.Errorf("%w: polygon needs at least 3 points, got %d", ErrInvalidGeometry, len(ring))
	}

	data, err := geojson.NewGeometry(orb.Polygon{toRing(ring)}).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return string(data), nil
}

// DecodePolygon is the inverse of EncodePolygon. The closing point is removed,
// so callers always receive an open ring.
//
// A legacy "lat,lng" string decodes to a single-point polygon.
func DecodePolygon(encoded string) ([]Coordinate, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidGeometry)
	}
	if !strings.HasPrefix(s, "{") {
		c, err := parseLegacyPoint(s)
		if err != nil {
			return nil, err
		}
		return []Coordinate{c}, nil
	}

	g, err := geojson.UnmarshalGeometry([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	poly, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("%w: expected Polygon, got %s", ErrInvalidGeometry, g.Type)
	}
	if len(poly) == 0 || len(poly[0]) == 0 {
		return nil, fmt.Errorf("%w: polygon has no outer ring", ErrInvalidGeometry)
	}

	return openRing(fromRing(poly[0])), nil
}

func parseLegacyPoint(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("%w: unrecognised encoding %q", ErrInvalidGeometry, s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude: %v", ErrInvalidGeometry, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude: %v", ErrInvalidGeometry, err)
	}

	return Coordinate{Lat: lat, Lon: lon}, nil
}

// toRing converts an open ring to a closed orb.Ring.
func toRing(points []Coordinate) orb.Ring {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, orb.Point{p.Lon, p.Lat})
	}
	return append(ring, ring[0])
}

func fromRing(ring orb.Ring) []Coordinate {
	points := make([]Coordinate, len(ring))
	for i, p := range ring {
		points[i] = Coordinate{Lat: p.Lat(), Lon: p.Lon()}
	}
	return points
}
