package tour_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/tour"
)

type recordingListener struct {
	mu          sync.Mutex
	transitions []tour.Transition
}

func (l *recordingListener) OnStopTransition(_ context.Context, tr tour.Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, tr)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transitions)
}

// changeListener records transitions and structural changes.
type changeListener struct {
	recordingListener
	changes []tour.Change
}

func (l *changeListener) OnTourChanged(_ context.Context, c tour.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

// failingRepository fails ApplyTransition and Get once failNext is set.
type failingRepository struct {
	*tour.InMemoryRepository
	failNext bool
}

var errDiskFull = errors.New("disk full")

func (r *failingRepository) ApplyTransition(ctx context.Context, tourID string, u tour.StopUpdate) (*tour.Tour, error) {
	if r.failNext {
		return nil, errDiskFull
	}
	return r.InMemoryRepository.ApplyTransition(ctx, tourID, u)
}

func (r *failingRepository) Get(ctx context.Context, id string) (*tour.Tour, error) {
	if r.failNext {
		return nil, errDiskFull
	}
	return r.InMemoryRepository.Get(ctx, id)
}

var clockStart = time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

func newService(t *testing.T, listeners ...tour.Listener) (*tour.Service, *time.Time) {
	t.Helper()
	now := clockStart
	svc := tour.NewService(tour.ServiceConfig{
		Repository: tour.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
		Listeners:  listeners,
		Now:        func() time.Time { return now },
	})
	return svc, &now
}

func stops(sites ...string) []tour.Stop {
	out := make([]tour.Stop, len(sites))
	for i, s := range sites {
		out[i] = tour.Stop{
			SiteID:   s,
			Name:     "Site " + s,
			Position: geo.Coordinate{Lat: 52.37 + float64(i)*0.001, Lon: 4.89},
		}
	}
	return out
}

func TestService_Create(t *testing.T) {
	svc, _ := newService(t)

	input := stops("a", "b", "c")
	input[1].Status = tour.StatusVisited
	input[2].Order = 99

	created, err := svc.Create(context.Background(), "Morning survey", input)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "tour_"))
	assert.Equal(t, clockStart, created.CreatedAt)
	require.Len(t, created.Stops, 3)
	for i, s := range created.Stops {
		assert.True(t, strings.HasPrefix(s.ID, "stp_"))
		assert.Equal(t, created.ID, s.TourID)
		assert.Equal(t, i, s.Order)
		assert.Equal(t, tour.StatusPending, s.Status)
	}
}

func TestService_SkipMiddleStop(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "scenario", stops("s0", "s1", "s2"))
	require.NoError(t, err)

	updated, err := svc.Skip(ctx, created.ID, "s1")
	require.NoError(t, err)

	next := updated.NextStop()
	require.NotNil(t, next)
	assert.Equal(t, "s0", next.SiteID)
	assert.Equal(t, 0, next.Order)
	assert.Equal(t, 2, updated.RemainingCount())
	assert.Zero(t, updated.Progress())
}

func TestService_MarkVisitedCompletesTour(t *testing.T) {
	listener := &recordingListener{}
	svc, now := newService(t, listener)
	ctx := context.Background()

	created, err := svc.Create(ctx, "short", stops("a", "b"))
	require.NoError(t, err)

	*now = clockStart.Add(10 * time.Minute)
	first, err := svc.MarkVisited(ctx, created.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, first.CompletedAt)
	require.NotNil(t, first.Stops[0].VisitedAt)
	assert.Equal(t, *now, *first.Stops[0].VisitedAt)

	*now = clockStart.Add(20 * time.Minute)
	done, err := svc.MarkVisited(ctx, created.ID, "b")
	require.NoError(t, err)
	assert.True(t, done.IsCompleted())
	assert.Nil(t, done.NextStop())
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, *now, *done.CompletedAt)
	assert.InDelta(t, 100.0, done.Progress(), 1e-9)

	require.Equal(t, 2, listener.count())
	last := listener.transitions[1]
	assert.Equal(t, "b", last.SiteID)
	assert.Equal(t, tour.StatusPending, last.From)
	assert.Equal(t, tour.StatusVisited, last.To)
	assert.True(t, last.Tour.IsCompleted(), "listeners see the committed completion")
	assert.NotNil(t, last.Tour.CompletedAt)
}

func TestService_MarkToReviewNotes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "notes", stops("a", "b"))
	require.NoError(t, err)

	updated, err := svc.MarkToReview(ctx, created.ID, "a", "roof damage, revisit with ladder")
	require.NoError(t, err)
	assert.Equal(t, tour.StatusToReview, updated.Stops[0].Status)
	assert.Equal(t, "roof damage, revisit with ladder", updated.Stops[0].Notes)
	assert.Nil(t, updated.Stops[0].VisitedAt)

	updated, err = svc.MarkToReview(ctx, created.ID, "b", "")
	require.NoError(t, err)
	assert.Empty(t, updated.Stops[1].Notes)
}

func TestService_InvalidTransitions(t *testing.T) {
	listener := &recordingListener{}
	svc, _ := newService(t, listener)
	ctx := context.Background()

	created, err := svc.Create(ctx, "strict", stops("a"))
	require.NoError(t, err)
	_, err = svc.MarkVisited(ctx, created.ID, "a")
	require.NoError(t, err)

	_, err = svc.Skip(ctx, created.ID, "a")
	assert.ErrorIs(t, err, tour.ErrInvalidTransition)
	_, err = svc.MarkToReview(ctx, created.ID, "a", "late")
	assert.ErrorIs(t, err, tour.ErrInvalidTransition)
	_, err = svc.MarkVisited(ctx, created.ID, "missing")
	assert.ErrorIs(t, err, tour.ErrStopNotFound)
	_, err = svc.MarkVisited(ctx, "tour_missing", "a")
	assert.ErrorIs(t, err, tour.ErrTourNotFound)

	assert.Equal(t, 1, listener.count(), "failed transitions notify nobody")
}

func TestService_CountInvariantUnderRandomTransitions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		svc, _ := newService(t)
		n := 1 + rng.Intn(12)
		sites := make([]string, n)
		for i := range sites {
			sites[i] = "site-" + string(rune('a'+i))
		}
		created, err := svc.Create(ctx, "random", stops(sites...))
		require.NoError(t, err)

		for step := 0; step < 2*n; step++ {
			site := sites[rng.Intn(n)]
			var tr *tour.Tour
			switch rng.Intn(3) {
			case 0:
				tr, err = svc.MarkVisited(ctx, created.ID, site)
			case 1:
				tr, err = svc.MarkToReview(ctx, created.ID, site, "check")
			default:
				tr, err = svc.Skip(ctx, created.ID, site)
			}
			if err != nil {
				require.ErrorIs(t, err, tour.ErrInvalidTransition)
				tr, err = svc.Get(ctx, created.ID)
				require.NoError(t, err)
			}

			total := tr.VisitedCount() + tr.ToReviewCount() + tr.RemainingCount() + tr.SkippedCount()
			require.Equal(t, len(tr.Stops), total)
			require.Equal(t, tr.RemainingCount() == 0, tr.IsCompleted())
			require.Equal(t, tr.IsCompleted(), tr.CompletedAt != nil)
		}
	}
}

func TestService_PersistenceFailure(t *testing.T) {
	listener := &recordingListener{}
	repo := &failingRepository{InMemoryRepository: tour.NewInMemoryRepository()}
	svc := tour.NewService(tour.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		Listeners:  []tour.Listener{listener},
	})
	ctx := context.Background()

	created, err := svc.Create(ctx, "fragile", stops("a"))
	require.NoError(t, err)

	repo.failNext = true
	got, err := svc.MarkVisited(ctx, created.ID, "a")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, tour.ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Zero(t, listener.count())

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, tour.ErrPersistence)
}

func TestService_Reorder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "reorder", stops("a", "b", "c"))
	require.NoError(t, err)

	updated, err := svc.Reorder(ctx, created.ID, []string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "c", updated.Stops[0].SiteID)
	assert.Equal(t, 0, updated.Stops[0].Order)
	assert.Equal(t, "b", updated.Stops[2].SiteID)
	assert.Equal(t, 2, updated.Stops[2].Order)
	assert.Equal(t, "c", updated.NextStop().SiteID)

	invalid := [][]string{
		{"a", "b"},
		{"a", "b", "b"},
		{"a", "b", "x"},
		{"a", "b", "c", "d"},
	}
	for _, order := range invalid {
		_, err := svc.Reorder(ctx, created.ID, order)
		assert.ErrorIs(t, err, tour.ErrInvalidOrder, "order %v", order)
	}
}

func TestService_StartTwice(t *testing.T) {
	svc, now := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "start", stops("a"))
	require.NoError(t, err)

	started, err := svc.Start(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, clockStart, *started.StartedAt)

	*now = clockStart.Add(time.Hour)
	_, err = svc.Start(ctx, created.ID)
	assert.ErrorIs(t, err, tour.ErrTourAlreadyStarted)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, clockStart, *got.StartedAt)
}

func TestService_CompleteExplicitly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "abandon", stops("a", "b"))
	require.NoError(t, err)

	done, err := svc.Complete(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.IsCompleted(), "stamping completion does not transition stops")

	_, err = svc.Complete(ctx, "tour_missing")
	assert.ErrorIs(t, err, tour.ErrTourNotFound)
}

func TestService_AppendStops(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "grow", stops("a", "b"))
	require.NoError(t, err)
	_, err = svc.Reorder(ctx, created.ID, []string{"b", "a"})
	require.NoError(t, err)

	updated, err := svc.AppendStops(ctx, created.ID, stops("c", "d"))
	require.NoError(t, err)
	require.Len(t, updated.Stops, 4)
	assert.Equal(t, "c", updated.Stops[2].SiteID)
	assert.Equal(t, 2, updated.Stops[2].Order)
	assert.Equal(t, 3, updated.Stops[3].Order)

	_, err = svc.AppendStops(ctx, created.ID, stops("a"))
	assert.ErrorIs(t, err, tour.ErrDuplicateSite)
}

func TestService_ListAndDelete(t *testing.T) {
	svc, now := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "first", stops("a"))
	require.NoError(t, err)
	*now = clockStart.Add(time.Minute)
	second, err := svc.Create(ctx, "second", nil)
	require.NoError(t, err)

	result, err := svc.List(ctx, tour.ListOptions{})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, second.ID, result.Items[0].ID)

	require.NoError(t, svc.Delete(ctx, first.ID))
	_, err = svc.Get(ctx, first.ID)
	assert.ErrorIs(t, err, tour.ErrTourNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, first.ID), tour.ErrTourNotFound)
}

func TestService_SubscribeAndListenerIsolation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var seen []*tour.Tour
	svc.Subscribe(tour.ListenerFunc(func(_ context.Context, tr tour.Transition) {
		tr.Tour.Stops[0].Name = "mutated"
		seen = append(seen, tr.Tour)
	}))
	other := &recordingListener{}
	svc.Subscribe(other)

	created, err := svc.Create(ctx, "isolated", stops("a", "b"))
	require.NoError(t, err)
	returned, err := svc.Skip(ctx, created.ID, "b")
	require.NoError(t, err)

	require.Len(t, seen, 1)
	require.Equal(t, 1, other.count())
	assert.Equal(t, "Site a", other.transitions[0].Tour.Stops[0].Name)
	assert.Equal(t, "Site a", returned.Stops[0].Name)
}

func TestService_ChangeListeners(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	plain := &recordingListener{}
	changes := &changeListener{}
	svc.Subscribe(plain)
	svc.Subscribe(changes)

	created, err := svc.Create(ctx, "changing", stops("a", "b"))
	require.NoError(t, err)

	reordered, err := svc.Reorder(ctx, created.ID, []string{"b", "a"})
	require.NoError(t, err)
	_, err = svc.AppendStops(ctx, created.ID, stops("c"))
	require.NoError(t, err)
	_, err = svc.Reorder(ctx, created.ID, []string{"a"})
	require.ErrorIs(t, err, tour.ErrInvalidOrder)
	require.NoError(t, svc.Delete(ctx, created.ID))

	require.Len(t, changes.changes, 3)
	assert.Equal(t, tour.ChangeReordered, changes.changes[0].Kind)
	assert.Equal(t, "b", changes.changes[0].Tour.NextStop().SiteID)
	assert.Equal(t, tour.ChangeStopsAppended, changes.changes[1].Kind)
	assert.Len(t, changes.changes[1].Tour.Stops, 3)
	assert.Equal(t, tour.Change{TourID: created.ID, Kind: tour.ChangeDeleted}, changes.changes[2])
	assert.Zero(t, plain.count())

	// The caller's tour is not shared with listeners.
	changes.changes[0].Tour.Stops[0].Name = "mutated"
	assert.NotEqual(t, "mutated", reordered.Stops[0].Name)
}
