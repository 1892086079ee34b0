package routing

import (
	"context"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// StraightLineName identifies the StraightLine provider.
const StraightLineName = "straight-line"

// StraightLine is a Provider that needs no network. It returns the great
// circle between the two points at geo.DefaultAverageSpeedKmh, with a single
// depart and arrive step.
type StraightLine struct{}

// Name implements Provider.
func (StraightLine) Name() string { return StraightLineName }

// Route implements Provider.
func (StraightLine) Route(ctx context.Context, req RouteRequest) (*RouteSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: StraightLineName, Code: "CANCELLED", Message: err.Error(), Err: ErrProviderUnavailable}
	}

	points := []geo.Coordinate{req.Origin, req.Destination}
	distance := geo.TotalDistance(points)
	duration := geo.EstimateDuration(points, geo.DefaultAverageSpeedKmh)

	return &RouteSegment{
		Points:          points,
		DistanceMeters:  distance,
		DurationSeconds: duration,
		Instructions: []Instruction{
			{
				Maneuver:        ManeuverDepart,
				DistanceMeters:  distance,
				DurationSeconds: duration,
				Text:            InstructionText(ManeuverDepart, "", ""),
			},
			{Maneuver: ManeuverArrive, Text: InstructionText(ManeuverArrive, "", "")},
		},
		Mode:     ModeDriving,
		Provider: StraightLineName,
	}, nil
}
