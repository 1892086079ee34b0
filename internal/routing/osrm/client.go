// Package osrm is a routing.Provider and routing.TripOptimizer backed by an
// OSRM server's /route and /trip services.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/provider/resilience"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "osrm"

	// DefaultBaseURL is the public OSRM demo server. It only serves driving.
	DefaultBaseURL = "https://router.project-osrm.org"

	// DefaultTimeout is the per-attempt HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// MaxTripCoordinates is the public server's coordinate limit, start included.
	MaxTripCoordinates = 80
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OSRM client.
type ClientConfig struct {
	// BaseURL is the OSRM server (optional, defaults to the demo server).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the per-attempt timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OSRM API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OSRM client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		cb := resilience.DefaultCircuitBreakerConfig(ProviderName)
		cb.OnStateChange = resilience.LogStateChange(cfg.Logger)
		clientCfg.CircuitBreaker = &cb
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Route implements routing.Provider.
func (c *Client) Route(ctx context.Context, req routing.RouteRequest) (*routing.RouteSegment, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=polyline6&steps=true",
		c.baseURL, coordinateList([]geo.Coordinate{req.Origin, req.Destination}))

	c.logger.Debug().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Msg("requesting route from OSRM")

	var resp routeResponse
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != codeOk {
		return nil, codeError(resp.Code, resp.Message)
	}
	if len(resp.Routes) == 0 {
		return nil, &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "response contained no routes", Err: routing.ErrNoRouteFound}
	}

	return toSegment(&resp.Routes[0])
}

// OptimizeTrip implements routing.TripOptimizer. The start is sent as the
// fixed first waypoint of a round trip; the return leg is ignored.
func (c *Client) OptimizeTrip(ctx context.Context, req routing.TripRequest) ([]int, error) {
	if len(req.Points) == 0 {
		return []int{}, nil
	}
	if len(req.Points)+1 > MaxTripCoordinates {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_BIG",
			Message:  fmt.Sprintf("trip has %d coordinates, limit is %d", len(req.Points)+1, MaxTripCoordinates),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	coords := append([]geo.Coordinate{req.Start}, req.Points...)
	url := fmt.Sprintf("%s/trip/v1/driving/%s?source=first&roundtrip=true&overview=false",
		c.baseURL, coordinateList(coords))

	c.logger.Debug().
		Int("stops", len(req.Points)).
		Msg("requesting trip optimization from OSRM")

	var resp tripResponse
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != codeOk {
		return nil, codeError(resp.Code, resp.Message)
	}

	return tripOrder(resp.Waypoints, len(req.Points))
}

// tripOrder converts per-input trip positions into indices into the stop list
// (input 0 is the start and is dropped).
func tripOrder(waypoints []tripWaypoint, n int) ([]int, error) {
	if len(waypoints) != n+1 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_TRIP",
			Message:  fmt.Sprintf("expected %d waypoints, got %d", n+1, len(waypoints)),
			Err:      routing.ErrMalformedResponse,
		}
	}
	for _, wp := range waypoints {
		if wp.TripsIndex != 0 {
			return nil, &routing.Error{Provider: ProviderName, Code: "SPLIT_TRIP", Message: "stops were split across trips", Err: routing.ErrMalformedResponse}
		}
	}

	// Stops must occupy trip positions 1..n exactly once; position 0 is the start.
	order := make([]int, n)
	seen := make([]bool, n)
	for i, wp := range waypoints[1:] {
		pos := wp.WaypointIndex - 1
		if pos < 0 || pos >= n || seen[pos] {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "BAD_TRIP",
				Message:  fmt.Sprintf("invalid waypoint_index %d for stop %d", wp.WaypointIndex, i),
				Err:      routing.ErrMalformedResponse,
			}
		}
		seen[pos] = true
		order[pos] = i
	}
	return order, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider: " + err.Error(),
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &routing.Error{Provider: ProviderName, Code: "READ_FAILED", Message: "reading response body", Err: routing.ErrProviderUnavailable}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &routing.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: "API rate limit exceeded", Err: routing.ErrRateLimitExceeded}
	case resp.StatusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", resp.StatusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	}

	// OSRM reports request errors with a 400 and a JSON code, so 4xx bodies
	// are decoded like successes and mapped by code.
	if err := json.Unmarshal(body, out); err != nil {
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  "decoding response: " + err.Error(),
			Err:      routing.ErrMalformedResponse,
		}
	}
	return nil
}

func codeError(code, message string) error {
	if message == "" {
		message = "OSRM returned " + code
	}
	var target error
	switch code {
	case codeNoRoute, codeNoSegment, codeNoTrips:
		target = routing.ErrNoRouteFound
	case codeInvalidInput, codeInvalidQuery:
		target = routing.ErrInvalidCoordinates
	case "":
		target = routing.ErrMalformedResponse
	default:
		target = routing.ErrProviderUnavailable
	}
	return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: target}
}

func toSegment(r *route) (*routing.RouteSegment, error) {
	decoded, err := polyline.Decode6(r.Geometry)
	if err != nil {
		return nil, &routing.Error{Provider: ProviderName, Code: "BAD_GEOMETRY", Message: err.Error(), Err: routing.ErrMalformedResponse}
	}

	points := make([]geo.Coordinate, len(decoded))
	for i, p := range decoded {
		points[i] = geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}

	seg := &routing.RouteSegment{
		Points:          points,
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}

	for _, l := range r.Legs {
		for _, s := range l.Steps {
			road := s.Name
			if road == "" {
				road = s.Ref
			}
			seg.Instructions = append(seg.Instructions, routing.Instruction{
				Maneuver:        s.Maneuver.Type,
				Modifier:        s.Maneuver.Modifier,
				RoadName:        road,
				DistanceMeters:  s.Distance,
				DurationSeconds: s.Duration,
				Text:            routing.InstructionText(s.Maneuver.Type, s.Maneuver.Modifier, road),
			})
		}
	}

	return seg, nil
}

// coordinateList formats coordinates as OSRM's "lon,lat;lon,lat" path segment.
func coordinateList(coords []geo.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
	}
	return strings.Join(parts, ";")
}

var (
	_ routing.Provider      = (*Client)(nil)
	_ routing.TripOptimizer = (*Client)(nil)
)
