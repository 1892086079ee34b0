// Package routing computes point-to-point route segments and delegated trip
// orders through an external routing provider, with caching, timeouts and
// client-side travel mode rescaling.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable covers network failures, timeouts, open circuit
	// breakers and non-success responses.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the provider quota is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates out-of-range input coordinates.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrMalformedResponse indicates a provider answer that could not be used.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Provider computes point-to-point routes. Implementations always return a
// driving route; other travel modes are derived by the Service.
type Provider interface {
	Route(ctx context.Context, req RouteRequest) (*RouteSegment, error)
	Name() string
}

// TripOptimizer returns a visit order for an unordered set of points.
type TripOptimizer interface {
	// OptimizeTrip returns indices into req.Points in visiting order.
	OptimizeTrip(ctx context.Context, req TripRequest) ([]int, error)
}

// RouteRequest is a point-to-point routing request.
type RouteRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
}

// TripRequest asks for a visiting order starting at Start.
type TripRequest struct {
	Start  geo.Coordinate
	Points []geo.Coordinate
}

// TravelMode selects how durations are derived.
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
	ModeCycling TravelMode = "cycling"
	ModeWalking TravelMode = "walking"
)

// Nominal speeds used to rescale non-driving durations.
const (
	CyclingSpeedKmh = 15.0
	WalkingSpeedKmh = 5.0
)

// ParseTravelMode parses a mode name. The empty string is driving.
func ParseTravelMode(s string) (TravelMode, error) {
	switch TravelMode(s) {
	case "", ModeDriving:
		return ModeDriving, nil
	case ModeCycling:
		return ModeCycling, nil
	case ModeWalking:
		return ModeWalking, nil
	default:
		return "", fmt.Errorf("unknown travel mode %q", s)
	}
}

// NominalSpeedKmh returns the fixed speed for rescaled modes, or 0 for driving
// where the provider duration is used as-is.
func (m TravelMode) NominalSpeedKmh() float64 {
	switch m {
	case ModeCycling:
		return CyclingSpeedKmh
	case ModeWalking:
		return WalkingSpeedKmh
	default:
		return 0
	}
}

// RouteSegment is a concrete path between two coordinates. It is never
// persisted with a tour.
type RouteSegment struct {
	Points          []geo.Coordinate `json:"points"`
	DistanceMeters  float64          `json:"distanceMeters"`
	DurationSeconds float64          `json:"durationSeconds"`
	Instructions    []Instruction    `json:"instructions"`
	Mode            TravelMode       `json:"mode"`
	Provider        string           `json:"provider"`
	FetchedAt       time.Time        `json:"fetchedAt"`
	// Stale is set when the segment was served from cache after a provider failure.
	Stale bool `json:"stale,omitempty"`
}

// Instruction is one turn-by-turn step.
type Instruction struct {
	Maneuver        string  `json:"maneuver"`
	Modifier        string  `json:"modifier,omitempty"`
	RoadName        string  `json:"roadName,omitempty"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	Text            string  `json:"text"`
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// ValidateCoordinate checks latitude and longitude ranges.
func ValidateCoordinate(c geo.Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// ValidatePermutation checks that order holds every index in [0, n) exactly once.
func ValidatePermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("%w: expected %d indices, got %d", ErrMalformedResponse, n, len(order))
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("%w: invalid or duplicate index %d", ErrMalformedResponse, idx)
		}
		seen[idx] = true
	}
	return nil
}
