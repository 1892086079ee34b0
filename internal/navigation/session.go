// Package navigation keeps route guidance toward the next pending stop of a
// tour current as the user moves and stops change status.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// DefaultRouteTimeout bounds a single route refresh.
const DefaultRouteTimeout = 12 * time.Second

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("navigation session closed")
	// ErrRefreshSuperseded is returned when a newer refresh started while
	// this one was in flight. Its result was discarded.
	ErrRefreshSuperseded = errors.New("route refresh superseded by a newer request")
	// ErrSessionNotFound is returned by the Manager for tours without an open
	// session.
	ErrSessionNotFound = errors.New("navigation session not found")
)

// Router computes a route between two points.
type Router interface {
	Route(ctx context.Context, origin, destination geo.Coordinate, mode routing.TravelMode) (*routing.RouteSegment, error)
}

// Recorder measures route refreshes. telemetry.PlanningMetrics satisfies it.
type Recorder interface {
	RecordRouteRefresh(ctx context.Context, mode string, duration time.Duration, err error)
}

// Snapshot is a point-in-time view of a session. Route is shared with the
// session and must not be modified.
type Snapshot struct {
	Tour      *tour.Tour
	NextStop  *tour.Stop
	Position  location.Fix
	Route     *routing.RouteSegment
	Mode      routing.TravelMode
	LastError error
	// ETA is the expected arrival at NextStop, or nil without a route.
	ETA    *time.Time
	Closed bool
}

// SessionConfig holds session dependencies.
type SessionConfig struct {
	// Tour is required.
	Tour     *tour.Tour
	Position location.Fix
	Mode     routing.TravelMode
	Router   Router
	Logger   zerolog.Logger
	Metrics  Recorder
	Timeout  time.Duration
	Now      func() time.Time
}

// Session guides one tour. All methods are safe for concurrent use; a route
// response is applied only if no newer refresh started after it.
type Session struct {
	router  Router
	logger  zerolog.Logger
	metrics Recorder
	timeout time.Duration
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	tour       *tour.Tour
	position   location.Fix
	mode       routing.TravelMode
	route      *routing.RouteSegment
	lastErr    error
	generation uint64
	closed     bool
}

// NewSession creates an open session. It does not route until RefreshRoute
// or ApplyTour is called.
func NewSession(cfg SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		router:   cfg.Router,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		ctx:      ctx,
		cancel:   cancel,
		tour:     cfg.Tour.Clone(),
		position: cfg.Position,
		mode:     cfg.Mode,
	}
	if s.timeout == 0 {
		s.timeout = DefaultRouteTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.mode == "" {
		s.mode = routing.ModeDriving
	}
	return s
}

// RefreshPosition records a new position. It never routes.
func (s *Session) RefreshPosition(fix location.Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = s.now().UTC()
	}
	s.position = fix
	return nil
}

// RefreshRoute routes from the current position to the next pending stop.
// Without a next stop the route is cleared and (nil, nil) is returned. On a
// routing failure the previous route is kept and returned together with an
// error wrapping routing.ErrProviderUnavailable.
func (s *Session) RefreshRoute(ctx context.Context) (*routing.RouteSegment, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.generation++
	gen := s.generation
	next := s.tour.NextStop()
	if next == nil {
		s.route = nil
		s.lastErr = nil
		s.mu.Unlock()
		return nil, nil
	}
	origin := s.position.Coordinate
	mode := s.mode
	tourID := s.tour.ID
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	seg, err := s.router.Route(callCtx, origin, next.Position, mode)
	if s.metrics != nil {
		s.metrics.RecordRouteRefresh(ctx, string(mode), time.Since(start), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if gen != s.generation {
		s.logger.Debug().
			Str("tour_id", tourID).
			Uint64("generation", gen).
			Msg("discarding superseded route response")
		return s.route, ErrRefreshSuperseded
	}

	if err != nil {
		s.lastErr = err
		s.logger.Warn().
			Err(err).
			Str("tour_id", tourID).
			Str("site_id", next.SiteID).
			Msg("route refresh failed, keeping previous route")
		if errors.Is(err, routing.ErrProviderUnavailable) {
			return s.route, err
		}
		return s.route, fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err)
	}

	s.route = seg
	s.lastErr = nil
	return seg, nil
}

// ApplyTour swaps in a new tour snapshot and refreshes the route.
func (s *Session) ApplyTour(ctx context.Context, t *tour.Tour) (*routing.RouteSegment, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.tour = t.Clone()
	s.mu.Unlock()

	return s.RefreshRoute(ctx)
}

// SetMode changes the travel mode used by later refreshes.
func (s *Session) SetMode(mode routing.TravelMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// TourID returns the navigated tour's ID.
func (s *Session) TourID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tour.ID
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Tour:      s.tour.Clone(),
		NextStop:  s.tour.NextStop(),
		Position:  s.position,
		Route:     s.route,
		Mode:      s.mode,
		LastError: s.lastErr,
		Closed:    s.closed,
	}
	if s.route != nil && snap.NextStop != nil {
		eta := s.now().UTC().Add(time.Duration(s.route.DurationSeconds * float64(time.Second)))
		snap.ETA = &eta
	}
	return snap
}

// Close cancels in-flight refreshes. Late results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
