package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldtour/fieldtour/internal/geo"
)

func TestHaversine(t *testing.T) {
	amsterdam := geo.Coordinate{Lat: 52.3676, Lon: 4.9041}
	utrecht := geo.Coordinate{Lat: 52.0907, Lon: 5.1214}

	assert.InDelta(t, 34000, geo.Haversine(amsterdam, utrecht), 1500)
	assert.Zero(t, geo.Haversine(amsterdam, amsterdam))
	assert.InDelta(t, geo.Haversine(amsterdam, utrecht), geo.Haversine(utrecht, amsterdam), 1e-9)

	// One degree of latitude on a 6371 km sphere.
	assert.InDelta(t, 111194.9, geo.Haversine(geo.Coordinate{}, geo.Coordinate{Lat: 1}), 0.5)
}

func TestTotalDistance(t *testing.T) {
	route := []geo.Coordinate{
		{Lat: 52.37, Lon: 4.89},
		{Lat: 52.36, Lon: 4.91},
		{Lat: 52.38, Lon: 4.95},
		{Lat: 52.35, Lon: 4.88},
	}

	reversed := make([]geo.Coordinate, len(route))
	for i, c := range route {
		reversed[len(route)-1-i] = c
	}

	total := geo.TotalDistance(route)
	assert.Greater(t, total, 0.0)
	assert.InDelta(t, total, geo.TotalDistance(reversed), 1e-6)

	assert.Zero(t, geo.TotalDistance(nil))
	assert.Zero(t, geo.TotalDistance(route[:1]))
}

func TestEstimateDuration(t *testing.T) {
	route := []geo.Coordinate{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 0}}
	meters := geo.TotalDistance(route)

	assert.InDelta(t, meters/(30/3.6), geo.EstimateDuration(route, 30), 1e-6)
	assert.InDelta(t, meters/(5/3.6), geo.EstimateDuration(route, 5), 1e-6)
	assert.InDelta(t, geo.EstimateDuration(route, geo.DefaultAverageSpeedKmh), geo.EstimateDuration(route, 0), 1e-6)
	assert.Zero(t, geo.EstimateDuration(route[:1], 30))
}
