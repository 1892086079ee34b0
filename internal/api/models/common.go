// Package models holds the JSON request and response bodies of the
// fieldtour API.
package models

import (
	"time"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// Point is a WGS84 position on the wire.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

func PointFrom(c geo.Coordinate) Point {
	return Point{Lat: c.Lat, Lon: c.Lon}
}

func PointsFrom(cs []geo.Coordinate) []Point {
	out := make([]Point, len(cs))
	for i, c := range cs {
		out[i] = PointFrom(c)
	}
	return out
}

// GeoBox is a bounding box in degrees.
type GeoBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// PagedResponseMeta accompanies list responses. NextCursor is also sent as
// a Link header.
type PagedResponseMeta struct {
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// HealthStatus is reported by the health and status endpoints.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp serialises as RFC 3339 in UTC with second precision.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).UTC().Truncate(time.Second).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var parsed time.Time
	if err := parsed.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// TimestampPtr converts an optional time; nil stays nil.
func TimestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}
