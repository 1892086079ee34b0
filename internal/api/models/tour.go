package models

import (
	"github.com/fieldtour/fieldtour/internal/planner"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// SiteInput is a site selected for a tour.
type SiteInput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Type    string `json:"type,omitempty"`
	// Footprint is a GeoJSON Polygon string or a legacy "lat,lng" point.
	Footprint string `json:"footprint"`
}

// Site converts the input to a planner site.
func (s SiteInput) Site() planner.Site {
	return planner.Site{
		ID:        s.ID,
		Name:      s.Name,
		Address:   s.Address,
		Type:      s.Type,
		Footprint: s.Footprint,
	}
}

// TourPlanRequest is the body of POST /v1/tours.
type TourPlanRequest struct {
	Name  string      `json:"name"`
	Start *Point      `json:"start,omitempty"`
	Mode  string      `json:"mode,omitempty"`
	Sites []SiteInput `json:"sites"`
}

// AppendStopsRequest is the body of POST /v1/tours/{tourId}/stops.
type AppendStopsRequest struct {
	Sites []SiteInput `json:"sites"`
}

// ReorderRequest is the body of PUT /v1/tours/{tourId}/order.
type ReorderRequest struct {
	SiteIDs []string `json:"siteIds"`
}

// ReviewRequest is the optional body of POST .../review.
type ReviewRequest struct {
	Notes string `json:"notes,omitempty"`
}

// Stop is a stop on a tour.
type Stop struct {
	ID        string     `json:"id"`
	SiteID    string     `json:"siteId"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	SiteType  string     `json:"siteType,omitempty"`
	Position  Point      `json:"position"`
	Status    string     `json:"status"`
	Order     int        `json:"order"`
	VisitedAt *Timestamp `json:"visitedAt,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// TourCounts summarises stop outcomes.
type TourCounts struct {
	Total     int `json:"total"`
	Visited   int `json:"visited"`
	ToReview  int `json:"toReview"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// Tour is a planned tour with its stops in order.
type Tour struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CreatedAt   Timestamp  `json:"createdAt"`
	StartedAt   *Timestamp `json:"startedAt,omitempty"`
	CompletedAt *Timestamp `json:"completedAt,omitempty"`
	Completed   bool       `json:"completed"`
	Progress    float64    `json:"progress"`
	Counts      TourCounts `json:"counts"`
	NextStop    *Stop      `json:"nextStop,omitempty"`
	Stops       []Stop     `json:"stops"`
}

// TourPlan is the response of POST /v1/tours.
type TourPlan struct {
	Tour                     Tour     `json:"tour"`
	Start                    Point    `json:"start"`
	Strategy                 string   `json:"strategy"`
	Degraded                 bool     `json:"degraded"`
	Warnings                 []string `json:"warnings,omitempty"`
	EstimatedDistanceMeters  float64  `json:"estimatedDistanceMeters"`
	EstimatedDurationSeconds float64  `json:"estimatedDurationSeconds"`
}

// AppendedStops is the response of POST /v1/tours/{tourId}/stops. Warnings
// name appended sites placed at the fallback position.
type AppendedStops struct {
	Tour
	Warnings []string `json:"warnings,omitempty"`
}

// PagedTours is a page of tours.
type PagedTours struct {
	Items []Tour            `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// StopFrom converts a domain stop.
func StopFrom(s tour.Stop) Stop {
	return Stop{
		ID:        s.ID,
		SiteID:    s.SiteID,
		Name:      s.Name,
		Address:   s.Address,
		SiteType:  s.SiteType,
		Position:  PointFrom(s.Position),
		Status:    s.Status.String(),
		Order:     s.Order,
		VisitedAt: TimestampPtr(s.VisitedAt),
		Notes:     s.Notes,
	}
}

// TourFrom converts a domain tour.
func TourFrom(t *tour.Tour) Tour {
	out := Tour{
		ID:          t.ID,
		Name:        t.Name,
		CreatedAt:   Timestamp(t.CreatedAt),
		StartedAt:   TimestampPtr(t.StartedAt),
		CompletedAt: TimestampPtr(t.CompletedAt),
		Completed:   t.IsCompleted(),
		Progress:    t.Progress(),
		Counts: TourCounts{
			Total:     len(t.Stops),
			Visited:   t.VisitedCount(),
			ToReview:  t.ToReviewCount(),
			Skipped:   t.SkippedCount(),
			Remaining: t.RemainingCount(),
		},
		Stops: make([]Stop, len(t.Stops)),
	}
	for i, s := range t.Stops {
		out.Stops[i] = StopFrom(s)
	}
	if next := t.NextStop(); next != nil {
		stop := StopFrom(*next)
		out.NextStop = &stop
	}
	return out
}

// TourPlanFrom converts a planner result.
func TourPlanFrom(p *planner.Plan) TourPlan {
	return TourPlan{
		Tour:                     TourFrom(p.Tour),
		Start:                    PointFrom(p.Start),
		Strategy:                 string(p.Strategy),
		Degraded:                 p.Degraded,
		Warnings:                 p.Warnings,
		EstimatedDistanceMeters:  p.EstimatedDistanceMeters,
		EstimatedDurationSeconds: p.EstimatedDurationSeconds,
	}
}
