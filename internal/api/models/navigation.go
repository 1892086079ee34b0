package models

import (
	"time"

	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/navigation"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/pkg/polyline"
)

// NavigationOpenRequest is the optional body of POST /v1/tours/{tourId}/navigation.
type NavigationOpenRequest struct {
	Mode string `json:"mode,omitempty"`
}

// PositionUpdate is a device fix pushed by the client.
type PositionUpdate struct {
	Lat            float64    `json:"lat"`
	Lon            float64    `json:"lon"`
	AccuracyMeters float64    `json:"accuracyMeters,omitempty"`
	RecordedAt     *Timestamp `json:"recordedAt,omitempty"`
}

// Fix converts the update. A missing timestamp is left zero for the
// receiver to stamp.
func (p PositionUpdate) Fix() location.Fix {
	fix := location.Fix{
		Coordinate:     Point{Lat: p.Lat, Lon: p.Lon}.Coordinate(),
		AccuracyMeters: p.AccuracyMeters,
	}
	if p.RecordedAt != nil {
		fix.RecordedAt = p.RecordedAt.Time()
	}
	return fix
}

// Position is a device fix.
type Position struct {
	Point
	AccuracyMeters float64    `json:"accuracyMeters,omitempty"`
	RecordedAt     *Timestamp `json:"recordedAt,omitempty"`
}

// PositionFrom converts a fix.
func PositionFrom(f location.Fix) Position {
	p := Position{Point: PointFrom(f.Coordinate), AccuracyMeters: f.AccuracyMeters}
	if !f.RecordedAt.IsZero() {
		ts := Timestamp(f.RecordedAt)
		p.RecordedAt = &ts
	}
	return p
}

// Instruction is one turn-by-turn step.
type Instruction struct {
	Text            string  `json:"text"`
	Maneuver        string  `json:"maneuver"`
	Modifier        string  `json:"modifier,omitempty"`
	RoadName        string  `json:"roadName,omitempty"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Route is a computed path to the next stop.
type Route struct {
	Mode            string  `json:"mode"`
	Provider        string  `json:"provider"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`

	// Polyline is the path in precision 5 encoded polyline format.
	Polyline     string        `json:"polyline"`
	Points       []Point       `json:"points"`
	Instructions []Instruction `json:"instructions"`
	FetchedAt    Timestamp     `json:"fetchedAt"`
	Stale        bool          `json:"stale,omitempty"`
}

// Navigation is the state of a navigation session.
type Navigation struct {
	TourID    string     `json:"tourId"`
	Mode      string     `json:"mode"`
	Position  Position   `json:"position"`
	NextStop  *Stop      `json:"nextStop,omitempty"`
	Route     *Route     `json:"route,omitempty"`
	ETA       *Timestamp `json:"eta,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Progress  float64    `json:"progress"`
	Completed bool       `json:"completed"`
}

// RouteFrom converts a segment. It returns nil for nil.
func RouteFrom(seg *routing.RouteSegment) *Route {
	if seg == nil {
		return nil
	}
	line := make([]polyline.Coordinate, len(seg.Points))
	for i, p := range seg.Points {
		line[i] = polyline.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}
	out := &Route{
		Mode:            string(seg.Mode),
		Provider:        seg.Provider,
		DistanceMeters:  seg.DistanceMeters,
		DurationSeconds: seg.DurationSeconds,
		Polyline:        polyline.Encode(line),
		Points:          PointsFrom(seg.Points),
		Instructions:    make([]Instruction, len(seg.Instructions)),
		FetchedAt:       Timestamp(seg.FetchedAt),
		Stale:           seg.Stale,
	}
	for i, in := range seg.Instructions {
		out.Instructions[i] = Instruction{
			Text:            in.Text,
			Maneuver:        in.Maneuver,
			Modifier:        in.Modifier,
			RoadName:        in.RoadName,
			DistanceMeters:  in.DistanceMeters,
			DurationSeconds: in.DurationSeconds,
		}
	}
	return out
}

// NavigationFrom converts a session snapshot.
func NavigationFrom(s navigation.Snapshot) Navigation {
	out := Navigation{
		Mode:     string(s.Mode),
		Position: PositionFrom(s.Position),
		Route:    RouteFrom(s.Route),
	}
	if s.Tour != nil {
		out.TourID = s.Tour.ID
		out.Progress = s.Tour.Progress()
		out.Completed = s.Tour.IsCompleted()
	}
	if s.NextStop != nil {
		stop := StopFrom(*s.NextStop)
		out.NextStop = &stop
	}
	if s.ETA != nil {
		ts := Timestamp(s.ETA.UTC().Truncate(time.Second))
		out.ETA = &ts
	}
	if s.LastError != nil {
		out.LastError = s.LastError.Error()
	}
	return out
}
