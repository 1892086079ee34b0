// Package openrouteservice is a routing.Provider and routing.TripOptimizer
// backed by the OpenRouteService directions and optimization APIs.
package openrouteservice

import (
	"bytes"
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
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// Profile is the ORS profile used for all requests. Other travel modes
	// are derived from driving distances by routing.Service.
	Profile = "driving-car"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
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
		apiKey:     cfg.APIKey,
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
	body := directionsRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates:  [][]float64{lonLat(req.Origin), lonLat(req.Destination)},
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	}

	c.logger.Debug().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Msg("requesting directions from ORS")

	var resp directionsResponse
	if err := c.post(ctx, "/v2/directions/"+Profile, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "response contained no routes", Err: routing.ErrNoRouteFound}
	}

	return toSegment(&resp.Routes[0])
}

// OptimizeTrip implements routing.TripOptimizer. Each point becomes a job
// with id index+1 served by a single vehicle starting at req.Start.
func (c *Client) OptimizeTrip(ctx context.Context, req routing.TripRequest) ([]int, error) {
	if len(req.Points) == 0 {
		return []int{}, nil
	}

	body := optimizationRequest{
		Jobs:     make([]job, len(req.Points)),
		Vehicles: []vehicle{{ID: 1, Profile: Profile, Start: lonLat(req.Start)}},
	}
	for i, p := range req.Points {
		body.Jobs[i] = job{ID: i + 1, Location: lonLat(p)}
	}

	c.logger.Debug().
		Int("stops", len(req.Points)).
		Msg("requesting trip optimization from ORS")

	var resp optimizationResponse
	if err := c.post(ctx, "/optimization", body, &resp); err != nil {
		return nil, err
	}

	return jobOrder(&resp, len(req.Points))
}

func jobOrder(resp *optimizationResponse, n int) ([]int, error) {
	if resp.Code != 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("VROOM_%d", resp.Code),
			Message:  resp.Error,
			Err:      routing.ErrProviderUnavailable,
		}
	}
	if len(resp.Unassigned) > 0 || len(resp.Routes) != 1 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "UNASSIGNED",
			Message:  fmt.Sprintf("%d stops were not assigned a position", len(resp.Unassigned)),
			Err:      routing.ErrMalformedResponse,
		}
	}

	order := make([]int, 0, n)
	for _, s := range resp.Routes[0].Steps {
		if s.Type == "job" {
			order = append(order, s.Job-1)
		}
	}

	if err := routing.ValidatePermutation(order, n); err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
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

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &routing.Error{Provider: ProviderName, Code: "READ_FAILED", Message: "reading response body", Err: routing.ErrProviderUnavailable}
	}

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &routing.Error{Provider: ProviderName, Code: "DECODE", Message: "decoding response: " + err.Error(), Err: routing.ErrMalformedResponse}
	}
	return nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	_ = json.Unmarshal(body, &orsErr)

	message := orsErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("routing provider returned status %d", statusCode)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: "API rate limit exceeded", Err: routing.ErrRateLimitExceeded}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &routing.Error{Provider: ProviderName, Code: "FORBIDDEN", Message: "API access denied, check ORS_API_KEY", Err: routing.ErrProviderUnavailable}
	case statusCode == http.StatusNotFound,
		orsErr.Error.Code == orsErrorCodeRouteNotFound,
		orsErr.Error.Code == orsErrorCodePointNotFound:
		return &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: message, Err: routing.ErrNoRouteFound}
	case statusCode == http.StatusBadRequest:
		return &routing.Error{Provider: ProviderName, Code: "BAD_REQUEST", Message: message, Err: routing.ErrInvalidCoordinates}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("HTTP_%d", statusCode), Message: message, Err: routing.ErrProviderUnavailable}
	}
}

func toSegment(r *orsRoute) (*routing.RouteSegment, error) {
	decoded, err := polyline.Decode(r.Geometry)
	if err != nil {
		return nil, &routing.Error{Provider: ProviderName, Code: "BAD_GEOMETRY", Message: err.Error(), Err: routing.ErrMalformedResponse}
	}

	points := make([]geo.Coordinate, len(decoded))
	for i, p := range decoded {
		points[i] = geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}

	seg := &routing.RouteSegment{
		Points:          points,
		DistanceMeters:  r.Summary.Distance,
		DurationSeconds: r.Summary.Duration,
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}

	for i := range r.Segments {
		for _, step := range r.Segments[i].Steps {
			maneuver, modifier := stepManeuver(step.Type)
			road := step.Name
			if road == "-" {
				road = ""
			}
			text := step.Instruction
			if text == "" {
				text = routing.InstructionText(maneuver, modifier, road)
			}
			seg.Instructions = append(seg.Instructions, routing.Instruction{
				Maneuver:        maneuver,
				Modifier:        modifier,
				RoadName:        road,
				DistanceMeters:  step.Distance,
				DurationSeconds: step.Duration,
				Text:            text,
			})
		}
	}

	return seg, nil
}

// stepManeuver maps an ORS step type onto the shared maneuver vocabulary.
func stepManeuver(t int) (maneuver, modifier string) {
	switch t {
	case stepLeft:
		return routing.ManeuverTurn, "left"
	case stepRight:
		return routing.ManeuverTurn, "right"
	case stepSharpLeft:
		return routing.ManeuverTurn, "sharp left"
	case stepSharpRight:
		return routing.ManeuverTurn, "sharp right"
	case stepSlightLeft:
		return routing.ManeuverTurn, "slight left"
	case stepSlightRight:
		return routing.ManeuverTurn, "slight right"
	case stepStraight:
		return routing.ManeuverContinue, "straight"
	case stepEnterRoundabout:
		return routing.ManeuverRoundabout, ""
	case stepExitRoundabout:
		return routing.ManeuverExitRoundabout, ""
	case stepUTurn:
		return routing.ManeuverTurn, "uturn"
	case stepGoal:
		return routing.ManeuverArrive, ""
	case stepDepart:
		return routing.ManeuverDepart, ""
	case stepKeepLeft:
		return routing.ManeuverFork, "left"
	case stepKeepRight:
		return routing.ManeuverFork, "right"
	default:
		return routing.ManeuverContinue, ""
	}
}

func lonLat(c geo.Coordinate) []float64 {
	return []float64{c.Lon, c.Lat}
}

var (
	_ routing.Provider      = (*Client)(nil)
	_ routing.TripOptimizer = (*Client)(nil)
)
