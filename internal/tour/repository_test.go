package tour

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// testRepository runs the Repository contract against a fresh repository.
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	fixture := func(id string, created time.Time, sites ...string) *Tour {
		tr := &Tour{ID: id, Name: "Tour " + id, CreatedAt: created}
		for i, site := range sites {
			tr.Stops = append(tr.Stops, Stop{
				ID:       fmt.Sprintf("%s_%d", id, i),
				TourID:   id,
				SiteID:   site,
				Name:     "Site " + site,
				Address:  site + " Street 1",
				SiteType: "building",
				Position: geo.Coordinate{Lat: 52 + float64(i)*0.01, Lon: 4.9},
				Order:    i,
			})
		}
		return tr
	}

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a", "b", "c")))

		got, err := repo.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "Tour t1", got.Name)
		assert.True(t, got.CreatedAt.Equal(base))
		assert.Nil(t, got.StartedAt)
		require.Len(t, got.Stops, 3)
		assert.Equal(t, "a", got.Stops[0].SiteID)
		assert.Equal(t, "a Street 1", got.Stops[0].Address)
		assert.InDelta(t, 52.01, got.Stops[1].Position.Lat, 1e-9)
		assert.Equal(t, StatusPending, got.Stops[2].Status)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrTourNotFound)
	})

	t.Run("duplicate site", func(t *testing.T) {
		repo := newRepo(t)
		assert.ErrorIs(t, repo.Create(ctx, fixture("t1", base, "a", "a")), ErrDuplicateSite)

		require.NoError(t, repo.Create(ctx, fixture("t2", base, "a")))
		err := repo.AppendStops(ctx, "t2", []Stop{{ID: "x", SiteID: "a", Order: 1}})
		assert.ErrorIs(t, err, ErrDuplicateSite)
	})

	t.Run("transition and completion", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a", "b")))

		visited := base.Add(time.Minute)
		got, err := repo.ApplyTransition(ctx, "t1", StopUpdate{SiteID: "a", To: StatusVisited, VisitedAt: &visited, CompleteAt: visited})
		require.NoError(t, err)
		assert.Nil(t, got.CompletedAt)
		assert.Equal(t, 1, got.VisitedCount())
		require.NotNil(t, got.Stops[0].VisitedAt)
		assert.True(t, got.Stops[0].VisitedAt.Equal(visited))

		_, err = repo.ApplyTransition(ctx, "t1", StopUpdate{SiteID: "a", To: StatusSkipped})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = repo.ApplyTransition(ctx, "t1", StopUpdate{SiteID: "zz", To: StatusSkipped})
		assert.ErrorIs(t, err, ErrStopNotFound)

		_, err = repo.ApplyTransition(ctx, "nope", StopUpdate{SiteID: "a", To: StatusSkipped})
		assert.ErrorIs(t, err, ErrTourNotFound)

		notes := "gate locked"
		done := base.Add(2 * time.Minute)
		got, err = repo.ApplyTransition(ctx, "t1", StopUpdate{SiteID: "b", To: StatusToReview, Notes: &notes, CompleteAt: done})
		require.NoError(t, err)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, got.CompletedAt.Equal(done))
		assert.Equal(t, "gate locked", got.Stops[1].Notes)
		assert.True(t, got.IsCompleted())
	})

	t.Run("append reopens", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a")))
		_, err := repo.ApplyTransition(ctx, "t1", StopUpdate{SiteID: "a", To: StatusSkipped, CompleteAt: base})
		require.NoError(t, err)

		require.NoError(t, repo.AppendStops(ctx, "t1", []Stop{{ID: "t1_b", TourID: "t1", SiteID: "b", Order: 1}}))

		got, err := repo.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Nil(t, got.CompletedAt)
		require.Len(t, got.Stops, 2)
		assert.Equal(t, "b", got.Stops[1].SiteID)

		assert.ErrorIs(t, repo.AppendStops(ctx, "nope", nil), ErrTourNotFound)
	})

	t.Run("update order", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a", "b", "c")))

		require.NoError(t, repo.UpdateOrder(ctx, "t1", map[string]int{"a": 2, "b": 0, "c": 1}))
		got, err := repo.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "a"}, []string{got.Stops[0].SiteID, got.Stops[1].SiteID, got.Stops[2].SiteID})

		assert.ErrorIs(t, repo.UpdateOrder(ctx, "t1", map[string]int{"a": 0}), ErrInvalidOrder)
	})

	t.Run("start and complete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a")))

		require.NoError(t, repo.SetStarted(ctx, "t1", base))
		assert.ErrorIs(t, repo.SetStarted(ctx, "t1", base.Add(time.Hour)), ErrTourAlreadyStarted)
		assert.ErrorIs(t, repo.SetStarted(ctx, "nope", base), ErrTourNotFound)

		require.NoError(t, repo.SetCompleted(ctx, "t1", base.Add(time.Hour)))
		require.NoError(t, repo.SetCompleted(ctx, "t1", base.Add(2*time.Hour)))
		assert.ErrorIs(t, repo.SetCompleted(ctx, "nope", base), ErrTourNotFound)

		got, err := repo.Get(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, got.StartedAt.Equal(base))
		assert.True(t, got.CompletedAt.Equal(base.Add(time.Hour)))
	})

	t.Run("delete cascades", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a", "b")))
		require.NoError(t, repo.Delete(ctx, "t1"))

		_, err := repo.Get(ctx, "t1")
		assert.ErrorIs(t, err, ErrTourNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "t1"), ErrTourNotFound)

		// The site can be reused on a new tour with the same ID.
		require.NoError(t, repo.Create(ctx, fixture("t1", base, "a")))
	})

	t.Run("list pages newest first", func(t *testing.T) {
		repo := newRepo(t)
		for i, id := range []string{"t1", "t2", "t3"} {
			require.NoError(t, repo.Create(ctx, fixture(id, base.Add(time.Duration(i)*time.Hour), "a")))
		}

		page, err := repo.List(ctx, ListOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "t3", page.Items[0].ID)
		assert.Equal(t, "t2", page.Items[1].ID)
		assert.Len(t, page.Items[0].Stops, 1)
		assert.Equal(t, "t2", page.NextCursor)

		page, err = repo.List(ctx, ListOptions{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "t1", page.Items[0].ID)
		assert.Empty(t, page.NextCursor)
	})
}

func TestInMemoryRepository(t *testing.T) {
	testRepository(t, func(*testing.T) Repository { return NewInMemoryRepository() })
}

func TestSQLiteRepository(t *testing.T) {
	testRepository(t, func(t *testing.T) Repository {
		repo, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestSQLiteRepository_Reopen(t *testing.T) {
	path := t.TempDir() + "/tours.db"

	repo, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &Tour{ID: "t1", Name: "kept", CreatedAt: time.Now()}))
	require.NoError(t, repo.Close())

	repo, err = OpenSQLite(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}
