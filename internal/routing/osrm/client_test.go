package osrm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/routing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

var (
	damrak   = geo.Coordinate{Lat: 52.370216, Lon: 4.895168}
	centraal = geo.Coordinate{Lat: 52.375, Lon: 4.905}
)

func TestClient_Route(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture(t, "route_response.json"))
	})

	seg, err := client.Route(context.Background(), routing.RouteRequest{Origin: damrak, Destination: centraal})
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/4.895168,52.370216;4.905000,52.375000", gotPath)
	assert.Contains(t, gotQuery, "geometries=polyline6")
	assert.Contains(t, gotQuery, "steps=true")
	assert.Contains(t, gotQuery, "overview=full")

	assert.Equal(t, ProviderName, seg.Provider)
	assert.InDelta(t, 812.4, seg.DistanceMeters, 1e-9)
	assert.InDelta(t, 97.5, seg.DurationSeconds, 1e-9)

	require.Len(t, seg.Points, 3)
	assert.InDelta(t, 52.370216, seg.Points[0].Lat, 1e-6)
	assert.InDelta(t, 4.895168, seg.Points[0].Lon, 1e-6)
	assert.InDelta(t, 52.375, seg.Points[2].Lat, 1e-6)
	assert.InDelta(t, 4.905, seg.Points[2].Lon, 1e-6)

	require.Len(t, seg.Instructions, 3)
	assert.Equal(t, routing.ManeuverDepart, seg.Instructions[0].Maneuver)
	assert.Equal(t, "Damrak", seg.Instructions[0].RoadName)
	assert.Equal(t, routing.ManeuverTurn, seg.Instructions[1].Maneuver)
	assert.Equal(t, "left", seg.Instructions[1].Modifier)
	assert.NotEmpty(t, seg.Instructions[1].Text)
	assert.Equal(t, "S100", seg.Instructions[2].RoadName, "ref is used when the name is empty")
}

func TestClient_Route_ErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "no route", status: http.StatusOK, body: `{"code":"NoRoute","message":"Impossible route"}`, want: routing.ErrNoRouteFound},
		{name: "no segment", status: http.StatusBadRequest, body: `{"code":"NoSegment"}`, want: routing.ErrNoRouteFound},
		{name: "invalid input", status: http.StatusBadRequest, body: `{"code":"InvalidInput"}`, want: routing.ErrInvalidCoordinates},
		{name: "too big", status: http.StatusBadRequest, body: `{"code":"TooBig"}`, want: routing.ErrProviderUnavailable},
		{name: "empty routes", status: http.StatusOK, body: `{"code":"Ok","routes":[]}`, want: routing.ErrNoRouteFound},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`, want: routing.ErrProviderUnavailable},
		{name: "rate limited", status: http.StatusTooManyRequests, body: ``, want: routing.ErrRateLimitExceeded},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: routing.ErrMalformedResponse},
		{name: "bad geometry", status: http.StatusOK, body: `{"code":"Ok","routes":[{"geometry":"_p~iF"}]}`, want: routing.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Route(context.Background(), routing.RouteRequest{Origin: damrak, Destination: centraal})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var rerr *routing.Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, ProviderName, rerr.Provider)
		})
	}
}

func TestClient_Route_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(ClientConfig{BaseURL: url, HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})

	_, err := client.Route(context.Background(), routing.RouteRequest{Origin: damrak, Destination: centraal})
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestClient_OptimizeTrip(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write(fixture(t, "trip_response.json"))
	})

	start := geo.Coordinate{Lat: 52.3702, Lon: 4.8952}
	points := []geo.Coordinate{
		{Lat: 52.40, Lon: 4.95},
		{Lat: 52.372, Lon: 4.90},
		{Lat: 52.38, Lon: 4.92},
	}

	order, err := client.OptimizeTrip(context.Background(), routing.TripRequest{Start: start, Points: points})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/trip/v1/driving/4.895200,52.370200;"))
	assert.Contains(t, gotQuery, "source=first")
	assert.Contains(t, gotQuery, "roundtrip=true")

	// Inputs 1..3 visited at trip positions 3, 1, 2.
	assert.Equal(t, []int{1, 2, 0}, order)
}

func TestClient_OptimizeTrip_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	order, err := client.OptimizeTrip(context.Background(), routing.TripRequest{Start: damrak})
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestClient_OptimizeTrip_TooManyPoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	points := make([]geo.Coordinate, MaxTripCoordinates)
	for i := range points {
		points[i] = geo.Coordinate{Lat: 52 + float64(i)*0.001, Lon: 4.9}
	}

	_, err := client.OptimizeTrip(context.Background(), routing.TripRequest{Start: damrak, Points: points})
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestTripOrder_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		waypoints []tripWaypoint
		n         int
	}{
		{name: "wrong count", waypoints: []tripWaypoint{{WaypointIndex: 0}, {WaypointIndex: 1}}, n: 2},
		{name: "split trips", waypoints: []tripWaypoint{{WaypointIndex: 0}, {WaypointIndex: 0, TripsIndex: 1}}, n: 1},
		{name: "duplicate position", waypoints: []tripWaypoint{{WaypointIndex: 0}, {WaypointIndex: 1}, {WaypointIndex: 1}}, n: 2},
		{name: "position past end", waypoints: []tripWaypoint{{WaypointIndex: 0}, {WaypointIndex: 1}, {WaypointIndex: 3}}, n: 2},
		{name: "stop at start position", waypoints: []tripWaypoint{{WaypointIndex: 1}, {WaypointIndex: 0}, {WaypointIndex: 2}}, n: 2},
		{name: "negative position", waypoints: []tripWaypoint{{WaypointIndex: 0}, {WaypointIndex: -1}}, n: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tripOrder(tt.waypoints, tt.n)
			assert.ErrorIs(t, err, routing.ErrMalformedResponse)
		})
	}
}

func TestTripOrder_Permutation(t *testing.T) {
	order, err := tripOrder([]tripWaypoint{{WaypointIndex: 0}, {WaypointIndex: 2}, {WaypointIndex: 3}, {WaypointIndex: 1}}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, order)
}

func TestClient_OptimizeTrip_DuplicateWaypointIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","waypoints":[
			{"waypoint_index":0,"trips_index":0},
			{"waypoint_index":1,"trips_index":0},
			{"waypoint_index":1,"trips_index":0}
		]}`))
	})

	_, err := client.OptimizeTrip(context.Background(), routing.TripRequest{
		Start:  damrak,
		Points: []geo.Coordinate{centraal, {Lat: 52.38, Lon: 4.92}},
	})
	assert.ErrorIs(t, err, routing.ErrMalformedResponse)
}

func TestCoordinateList(t *testing.T) {
	got := coordinateList([]geo.Coordinate{{Lat: 1.5, Lon: 2.25}, {Lat: -3, Lon: 4}})
	assert.Equal(t, "2.250000,1.500000;4.000000,-3.000000", got)
}
