package worker_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/events"
	"github.com/fieldtour/fieldtour/internal/worker"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func event(id, tourID string, at time.Duration, visited, toReview, skipped, total int) events.Event {
	done := visited+toReview+skipped == total
	return events.Event{
		ID:         id,
		Type:       events.TypeStopTransitioned,
		TourID:     tourID,
		TourName:   "Round " + tourID,
		Total:      total,
		Visited:    visited,
		ToReview:   toReview,
		Skipped:    skipped,
		Progress:   float64(visited) / float64(total) * 100,
		Completed:  done,
		OccurredAt: t0.Add(at),
	}
}

func TestReporter_TalliesAndCompletionReport(t *testing.T) {
	var buf bytes.Buffer
	r := worker.NewReporter(zerolog.New(&buf))
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, event("e1", "tour_a", 0, 1, 0, 0, 3)))
	require.NoError(t, r.Handle(ctx, event("e2", "tour_a", 10*time.Minute, 1, 1, 0, 3)))
	assert.NotContains(t, buf.String(), "tour completion report")

	require.NoError(t, r.Handle(ctx, event("e3", "tour_a", 25*time.Minute, 1, 1, 1, 3)))

	tally, ok := r.Tally("tour_a")
	require.True(t, ok)
	assert.Equal(t, 1, tally.Visited)
	assert.Equal(t, 1, tally.ToReview)
	assert.Equal(t, 1, tally.Skipped)
	assert.True(t, tally.Completed)
	assert.Equal(t, 3, tally.Events)

	out := buf.String()
	assert.Contains(t, out, "tour completion report")
	assert.Contains(t, out, `"tour_id":"tour_a"`)
	assert.Contains(t, out, `"skipped":1`)
}

func TestReporter_IgnoresRedelivery(t *testing.T) {
	var buf bytes.Buffer
	r := worker.NewReporter(zerolog.New(&buf))
	ctx := context.Background()

	done := event("e1", "tour_a", 0, 1, 0, 0, 1)
	require.NoError(t, r.Handle(ctx, done))
	require.NoError(t, r.Handle(ctx, done))

	tally, _ := r.Tally("tour_a")
	assert.Equal(t, 1, tally.Events)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("tour completion report")))

	stats := r.Stats()
	assert.Equal(t, 1, stats.Events)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.Completed)
}

func TestReporter_OutOfOrderEventsKeepNewest(t *testing.T) {
	r := worker.NewReporter(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, event("late", "tour_a", 5*time.Minute, 2, 0, 0, 4)))
	require.NoError(t, r.Handle(ctx, event("early", "tour_a", time.Minute, 1, 0, 0, 4)))

	tally, _ := r.Tally("tour_a")
	assert.Equal(t, 2, tally.Visited)
	assert.Equal(t, t0.Add(time.Minute), tally.FirstSeen)
	assert.Equal(t, t0.Add(5*time.Minute), tally.LastEventAt)
}

func TestReporter_Tallies(t *testing.T) {
	r := worker.NewReporter(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, event("e1", "tour_a", time.Minute, 1, 0, 0, 2)))
	require.NoError(t, r.Handle(ctx, event("e2", "tour_b", 2*time.Minute, 1, 0, 0, 2)))

	all := r.Tallies()
	require.Len(t, all, 2)
	assert.Equal(t, "tour_b", all[0].TourID)
	assert.Equal(t, "tour_a", all[1].TourID)

	_, ok := r.Tally("tour_missing")
	assert.False(t, ok)
}

func TestDefaultConsumerSettings(t *testing.T) {
	s := worker.DefaultConsumerSettings()

	assert.Equal(t, 10, s.MaxOutstandingMessages)
	assert.Equal(t, 10*time.Minute, s.MaxExtension)
	assert.Equal(t, 30*time.Second, s.HandleTimeout)
}
