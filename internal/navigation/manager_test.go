package navigation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

func newManagerFixture(t *testing.T, router Router, source location.Source) (*Manager, *tour.Service, *tour.Tour) {
	t.Helper()

	svc := tour.NewService(tour.ServiceConfig{Repository: tour.NewInMemoryRepository(), Logger: zerolog.Nop()})
	created, err := svc.Create(context.Background(), "Round", []tour.Stop{
		{SiteID: "a", Position: geo.Coordinate{Lat: 52.01, Lon: 4.0}},
		{SiteID: "b", Position: geo.Coordinate{Lat: 52.02, Lon: 4.0}},
	})
	require.NoError(t, err)

	m := NewManager(ManagerConfig{
		Tours:    svc,
		Router:   router,
		Location: source,
		Fallback: geo.Coordinate{Lat: 52.0, Lon: 4.0},
		Logger:   zerolog.Nop(),
	})
	svc.Subscribe(m)
	return m, svc, created
}

func okRouter() *fakeRouter {
	return &fakeRouter{fn: func(context.Context, int) (*routing.RouteSegment, error) { return segment(1000), nil }}
}

func TestManager_OpenStartsTour(t *testing.T) {
	router := okRouter()
	m, svc, created := newManagerFixture(t, router, nil)

	s, err := m.Open(context.Background(), created.ID, routing.ModeWalking)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NotNil(t, snap.Tour.StartedAt)
	assert.Equal(t, routing.ModeWalking, snap.Mode)
	assert.NotNil(t, snap.Route)
	assert.Equal(t, geo.Coordinate{Lat: 52.0, Lon: 4.0}, snap.Position.Coordinate)

	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.StartedAt)

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestManager_OpenResumesStartedTour(t *testing.T) {
	m, svc, created := newManagerFixture(t, okRouter(), nil)

	started, err := svc.Start(context.Background(), created.ID)
	require.NoError(t, err)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, *started.StartedAt, *s.Snapshot().Tour.StartedAt)
}

func TestManager_OpenUnknownTour(t *testing.T) {
	m, _, _ := newManagerFixture(t, okRouter(), nil)

	_, err := m.Open(context.Background(), "tour_missing", routing.ModeDriving)
	assert.ErrorIs(t, err, tour.ErrTourNotFound)
}

func TestManager_OpenUsesLocationSource(t *testing.T) {
	tracker := location.NewTracker(0)
	here := geo.Coordinate{Lat: 51.99, Lon: 4.01}
	tracker.Update(location.Fix{Coordinate: here, AccuracyMeters: 8})

	router := okRouter()
	m, _, created := newManagerFixture(t, router, tracker)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, here, s.Snapshot().Position.Coordinate)
	assert.Equal(t, here, router.calls[0].origin)
}

func TestManager_OpenSurvivesRoutingFailure(t *testing.T) {
	router := &fakeRouter{fn: func(context.Context, int) (*routing.RouteSegment, error) {
		return nil, errors.New("down")
	}}
	m, _, created := newManagerFixture(t, router, nil)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Nil(t, snap.Route)
	assert.Error(t, snap.LastError)
}

func TestManager_TransitionRefreshesRoute(t *testing.T) {
	router := okRouter()
	m, svc, created := newManagerFixture(t, router, nil)

	_, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)

	_, err = svc.MarkVisited(context.Background(), created.ID, "a")
	require.NoError(t, err)

	require.Equal(t, 2, router.callCount())
	assert.Equal(t, geo.Coordinate{Lat: 52.02, Lon: 4.0}, router.calls[1].destination)

	s, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", s.Snapshot().NextStop.SiteID)

	_, err = svc.Skip(context.Background(), created.ID, "b")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Nil(t, snap.Route)
	assert.Nil(t, snap.NextStop)
	assert.True(t, snap.Tour.IsCompleted())
	assert.Equal(t, 2, router.callCount())
}

func TestManager_Close(t *testing.T) {
	router := okRouter()
	m, svc, created := newManagerFixture(t, router, nil)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)

	require.NoError(t, m.Close(created.ID))
	assert.True(t, s.Snapshot().Closed)

	_, err = m.Get(created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(created.ID), ErrSessionNotFound)

	// Transitions on a tour without a session do not route.
	_, err = svc.MarkVisited(context.Background(), created.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, router.callCount())
}

func TestManager_ReopenReplacesSession(t *testing.T) {
	m, _, created := newManagerFixture(t, okRouter(), nil)

	first, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)
	second, err := m.Open(context.Background(), created.ID, routing.ModeCycling)
	require.NoError(t, err)

	assert.True(t, first.Snapshot().Closed)
	assert.False(t, second.Snapshot().Closed)
	assert.Equal(t, 1, m.ActiveSessions())

	m.CloseAll()
	assert.True(t, second.Snapshot().Closed)
	assert.Zero(t, m.ActiveSessions())
}

func TestManager_ReorderReroutesToNewNextStop(t *testing.T) {
	router := okRouter()
	m, svc, created := newManagerFixture(t, router, nil)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)
	require.Equal(t, "a", s.Snapshot().NextStop.SiteID)

	_, err = svc.Reorder(context.Background(), created.ID, []string{"b", "a"})
	require.NoError(t, err)

	assert.Equal(t, "b", s.Snapshot().NextStop.SiteID)
	require.Equal(t, 2, router.callCount())
	assert.Equal(t, geo.Coordinate{Lat: 52.02, Lon: 4.0}, router.calls[1].destination)

	_, err = s.RefreshRoute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Lat: 52.02, Lon: 4.0}, router.calls[2].destination)
}

func TestManager_AppendAfterCompletionResumesRouting(t *testing.T) {
	router := okRouter()
	m, svc, created := newManagerFixture(t, router, nil)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)
	_, err = svc.MarkVisited(context.Background(), created.ID, "a")
	require.NoError(t, err)
	_, err = svc.MarkVisited(context.Background(), created.ID, "b")
	require.NoError(t, err)
	require.Nil(t, s.Snapshot().NextStop)

	_, err = svc.AppendStops(context.Background(), created.ID, []tour.Stop{
		{SiteID: "c", Position: geo.Coordinate{Lat: 52.03, Lon: 4.0}},
	})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NotNil(t, snap.NextStop)
	assert.Equal(t, "c", snap.NextStop.SiteID)
	assert.NotNil(t, snap.Route)
	assert.Equal(t, geo.Coordinate{Lat: 52.03, Lon: 4.0}, router.calls[router.callCount()-1].destination)
}

func TestManager_DeleteClosesSession(t *testing.T) {
	m, svc, created := newManagerFixture(t, okRouter(), nil)

	s, err := m.Open(context.Background(), created.ID, routing.ModeDriving)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = m.Get(created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, s.Snapshot().Closed)
	assert.Zero(t, m.ActiveSessions())
}

func TestManager_ChangeWithoutSessionIsIgnored(t *testing.T) {
	router := okRouter()
	_, svc, created := newManagerFixture(t, router, nil)

	_, err := svc.Reorder(context.Background(), created.ID, []string{"b", "a"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), created.ID))

	assert.Zero(t, router.callCount())
}
