package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// DefaultTimeout bounds every provider call made by the Service.
const DefaultTimeout = 12 * time.Second

// Recorder receives provider call measurements. telemetry.ProviderMetrics
// satisfies it.
type Recorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider computes point-to-point routes.
	Provider Provider

	// Optimizer computes trip orders. Optional.
	Optimizer TripOptimizer

	// Cache stores driving segments (default: in-memory).
	Cache RouteCache

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records provider calls. Optional.
	Metrics Recorder

	// Timeout wraps every provider call (default: 12s).
	Timeout time.Duration

	// CacheTTL is how long a cached segment is served without asking the
	// provider (default: 2 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the cache cell size in degrees (default: 0.0005, ~55m).
	// Origins within one cell share a cached segment.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving an expired segment when the provider
	// fails (default: 10 minutes).
	StaleIfErrorTTL time.Duration

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Service provides cached routing with travel mode rescaling. It satisfies
// TripOptimizer itself so callers see a single timeout policy.
type Service struct {
	provider        Provider
	optimizer       TripOptimizer
	cache           RouteCache
	logger          zerolog.Logger
	metrics         Recorder
	timeout         time.Duration
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	now             func() time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:        cfg.Provider,
		optimizer:       cfg.Optimizer,
		cache:           cfg.Cache,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		timeout:         cfg.Timeout,
		cacheTTL:        cfg.CacheTTL,
		cacheGridSize:   cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		now:             cfg.Now,
	}

	if s.cache == nil {
		s.cache = NewMemoryCache(0)
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.timeout == 0 {
		s.timeout = DefaultTimeout
	}
	if s.cacheTTL == 0 {
		s.cacheTTL = 2 * time.Minute
	}
	if s.cacheGridSize == 0 {
		s.cacheGridSize = 0.0005
	}
	if s.staleIfErrorTTL == 0 {
		s.staleIfErrorTTL = 10 * time.Minute
	}
	if s.staleIfErrorTTL < s.cacheTTL {
		s.staleIfErrorTTL = s.cacheTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Route returns a segment from origin to destination for the given mode.
// Provider failures are reported as *Error wrapping ErrProviderUnavailable
// unless the provider classified them more precisely. A cached segment past
// its TTL but within the stale window is returned with Stale set instead of
// an error.
func (s *Service) Route(ctx context.Context, origin, destination geo.Coordinate, mode TravelMode) (*RouteSegment, error) {
	if err := ValidateCoordinate(origin); err != nil {
		return nil, &Error{Provider: s.provider.Name(), Code: "INVALID_ORIGIN", Message: "invalid origin coordinates", Err: err}
	}
	if err := ValidateCoordinate(destination); err != nil {
		return nil, &Error{Provider: s.provider.Name(), Code: "INVALID_DESTINATION", Message: "invalid destination coordinates", Err: err}
	}
	if mode == "" {
		mode = ModeDriving
	}

	key := s.cacheKey(origin, destination)
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("route cache read failed")
	}

	now := s.now()
	if cached != nil && now.Before(cached.FetchedAt.Add(s.cacheTTL)) {
		s.metrics.RecordCacheHit(s.provider.Name(), "route")
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for route")
		return withMode(cached.Segment, mode), nil
	}
	s.metrics.RecordCacheMiss(s.provider.Name(), "route")

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	seg, err := s.provider.Route(callCtx, RouteRequest{Origin: origin, Destination: destination})
	s.metrics.RecordRequest(s.provider.Name(), "route", time.Since(start), err)

	if err != nil {
		err = s.classify(err)
		s.logger.Error().Err(err).
			Float64("origin_lat", origin.Lat).
			Float64("origin_lon", origin.Lon).
			Float64("dest_lat", destination.Lat).
			Float64("dest_lon", destination.Lon).
			Msg("failed to fetch route")

		if cached != nil && now.Before(cached.FetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", cached.FetchedAt).
				Str("cache_key", key).
				Msg("serving stale route due to provider error")
			stale := withMode(cached.Segment, mode)
			stale.Stale = true
			return stale, nil
		}
		return nil, err
	}

	seg.Mode = ModeDriving
	if seg.Provider == "" {
		seg.Provider = s.provider.Name()
	}
	if seg.FetchedAt.IsZero() {
		seg.FetchedAt = now
	}

	if err := s.cache.Set(ctx, key, CachedRoute{Segment: *seg, FetchedAt: seg.FetchedAt}, s.staleIfErrorTTL); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("route cache write failed")
	}

	return withMode(*seg, mode), nil
}

// OptimizeTrip implements TripOptimizer using the configured optimizer with
// the service timeout. The returned order is validated before it is handed
// back.
func (s *Service) OptimizeTrip(ctx context.Context, req TripRequest) ([]int, error) {
	if s.optimizer == nil {
		return nil, &Error{Provider: s.provider.Name(), Code: "NOT_SUPPORTED", Message: "trip optimization not configured", Err: ErrProviderUnavailable}
	}
	if err := ValidateCoordinate(req.Start); err != nil {
		return nil, err
	}
	for _, p := range req.Points {
		if err := ValidateCoordinate(p); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	order, err := s.optimizer.OptimizeTrip(callCtx, req)
	s.metrics.RecordRequest(s.provider.Name(), "trip", time.Since(start), err)
	if err != nil {
		return nil, s.classify(err)
	}
	if err := ValidatePermutation(order, len(req.Points)); err != nil {
		return nil, &Error{Provider: s.provider.Name(), Code: "BAD_TRIP", Message: "trip order rejected", Err: err}
	}
	return order, nil
}

// classify maps an arbitrary provider error onto the routing taxonomy.
func (s *Service) classify(err error) error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return err
	}
	code := "UNAVAILABLE"
	if errors.Is(err, context.DeadlineExceeded) {
		code = "TIMEOUT"
	}
	return &Error{
		Provider: s.provider.Name(),
		Code:     code,
		Message:  err.Error(),
		Err:      ErrProviderUnavailable,
	}
}

// cacheKey quantizes both endpoints to the cache grid.
func (s *Service) cacheKey(origin, destination geo.Coordinate) string {
	q := func(v float64) float64 { return math.Floor(v/s.cacheGridSize) * s.cacheGridSize }
	return fmt.Sprintf("%s:%.5f,%.5f:%.5f,%.5f",
		s.provider.Name(),
		q(origin.Lat), q(origin.Lon),
		q(destination.Lat), q(destination.Lon),
	)
}

// withMode copies seg and rescales durations for non-driving modes.
func withMode(seg RouteSegment, mode TravelMode) *RouteSegment {
	out := seg
	out.Mode = mode
	out.Points = append([]geo.Coordinate(nil), seg.Points...)
	out.Instructions = append([]Instruction(nil), seg.Instructions...)

	speed := mode.NominalSpeedKmh()
	if speed == 0 {
		return &out
	}

	mps := speed / 3.6
	out.DurationSeconds = seg.DistanceMeters / mps
	for i := range out.Instructions {
		out.Instructions[i].DurationSeconds = out.Instructions[i].DistanceMeters / mps
	}
	return &out
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, time.Duration, error) {}
func (nopRecorder) RecordCacheHit(string, string)                       {}
func (nopRecorder) RecordCacheMiss(string, string)                      {}

var _ TripOptimizer = (*Service)(nil)
