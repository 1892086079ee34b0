// Package planner turns a selection of sites into a persisted, optimized tour.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/optimizer"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// ErrInvalidSite is returned for a site without an ID.
var ErrInvalidSite = errors.New("site requires an id")

// Site is a selected location with its encoded footprint. The planner only
// reads it.
type Site struct {
	ID      string
	Name    string
	Address string
	Type    string
	// Footprint is a GeoJSON Polygon or a legacy "lat,lng" point.
	Footprint string
}

// PlanRequest describes a tour to plan.
type PlanRequest struct {
	Name string
	// Start overrides the location source when set.
	Start *geo.Coordinate
	Sites []Site
	Mode  routing.TravelMode
}

// Plan is the outcome of planning.
type Plan struct {
	Tour     *tour.Tour
	Start    geo.Coordinate
	Strategy optimizer.Strategy
	// Degraded is set when the delegated optimizer failed and the local
	// heuristic produced the order.
	Degraded bool
	// Warnings lists sites whose footprint could not be read.
	Warnings []string

	EstimatedDistanceMeters  float64
	EstimatedDurationSeconds float64
}

// Optimizer orders stops.
type Optimizer interface {
	Optimize(ctx context.Context, start geo.Coordinate, stops []tour.Stop) optimizer.Result
}

// TourCreator persists a new tour.
type TourCreator interface {
	Create(ctx context.Context, name string, stops []tour.Stop) (*tour.Tour, error)
}

// Config holds planner dependencies.
type Config struct {
	Optimizer Optimizer
	Tours     TourCreator
	// Location provides the start when the request has none. Optional.
	Location location.Source
	// Fallback is used for the start and for unreadable footprints.
	Fallback geo.Coordinate
	Logger   zerolog.Logger
}

// Planner builds tours from sites.
type Planner struct {
	optimizer Optimizer
	tours     TourCreator
	location  location.Source
	fallback  geo.Coordinate
	logger    zerolog.Logger
}

// New creates a planner.
func New(cfg Config) *Planner {
	return &Planner{
		optimizer: cfg.Optimizer,
		tours:     cfg.Tours,
		location:  location.WithFallback(cfg.Location, cfg.Fallback),
		fallback:  cfg.Fallback,
		logger:    cfg.Logger,
	}
}

// Plan freezes each site into a stop, orders the stops from the resolved
// start and creates the tour. A fallback order from the local heuristic is
// not an error.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	for _, s := range req.Sites {
		if strings.TrimSpace(s.ID) == "" {
			return nil, ErrInvalidSite
		}
	}
	if dups := lo.FindDuplicatesBy(req.Sites, func(s Site) string { return s.ID }); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", tour.ErrDuplicateSite, dups[0].ID)
	}

	stops, warnings := p.Stops(req.Sites)
	start := p.resolveStart(ctx, req.Start)

	res := p.optimizer.Optimize(ctx, start, stops)

	created, err := p.tours.Create(ctx, req.Name, res.Stops)
	if err != nil {
		return nil, err
	}

	path := append([]geo.Coordinate{start}, lo.Map(created.Stops, func(s tour.Stop, _ int) geo.Coordinate { return s.Position })...)
	speed := req.Mode.NominalSpeedKmh()

	p.logger.Info().
		Str("tour_id", created.ID).
		Int("stops", len(created.Stops)).
		Str("strategy", string(res.Strategy)).
		Bool("degraded", res.Degraded).
		Msg("tour planned")

	return &Plan{
		Tour:                     created,
		Start:                    start,
		Strategy:                 res.Strategy,
		Degraded:                 res.Degraded,
		Warnings:                 warnings,
		EstimatedDistanceMeters:  geo.TotalDistance(path),
		EstimatedDurationSeconds: geo.EstimateDuration(path, speed),
	}, nil
}

// Stops converts sites into pending stops positioned at their footprint
// centroid. Sites with unreadable footprints are placed at the fallback and
// reported in the returned warnings.
func (p *Planner) Stops(sites []Site) ([]tour.Stop, []string) {
	var warnings []string
	stops := make([]tour.Stop, len(sites))
	for i, s := range sites {
		pos, err := p.position(s)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("site_id", s.ID).
				Msg("invalid site footprint, using fallback position")
			warnings = append(warnings, s.ID)
			pos = p.fallback
		}
		stops[i] = tour.Stop{
			SiteID:   s.ID,
			Name:     s.Name,
			Address:  s.Address,
			SiteType: s.Type,
			Position: pos,
			Status:   tour.StatusPending,
			Order:    i,
		}
	}
	return stops, warnings
}

func (p *Planner) position(s Site) (geo.Coordinate, error) {
	points, err := geo.DecodePolygon(s.Footprint)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.Centroid(points)
}

func (p *Planner) resolveStart(ctx context.Context, start *geo.Coordinate) geo.Coordinate {
	if start != nil {
		return *start
	}
	// WithFallback never fails.
	fix, _ := p.location.Current(ctx)
	return fix.Coordinate
}
