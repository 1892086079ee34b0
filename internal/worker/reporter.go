package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/events"
)

// Tally is the latest outcome count for one tour.
type Tally struct {
	TourID      string    `json:"tourId"`
	TourName    string    `json:"tourName,omitempty"`
	Total       int       `json:"total"`
	Visited     int       `json:"visited"`
	ToReview    int       `json:"toReview"`
	Skipped     int       `json:"skipped"`
	Progress    float64   `json:"progress"`
	Completed   bool      `json:"completed"`
	Events      int       `json:"events"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastEventAt time.Time `json:"lastEventAt"`
}

// Stats summarizes everything the reporter has seen.
type Stats struct {
	Tours      int `json:"tours"`
	Completed  int `json:"completed"`
	Events     int `json:"events"`
	Duplicates int `json:"duplicates"`
}

// Reporter keeps per-tour tallies and logs a report when a tour completes.
// Redelivered events are counted once.
type Reporter struct {
	logger zerolog.Logger

	mu         sync.RWMutex
	tallies    map[string]*Tally
	seen       map[string]struct{}
	reported   map[string]bool
	events     int
	duplicates int
}

// NewReporter creates a reporter.
func NewReporter(logger zerolog.Logger) *Reporter {
	return &Reporter{
		logger:   logger,
		tallies:  make(map[string]*Tally),
		seen:     make(map[string]struct{}),
		reported: make(map[string]bool),
	}
}

// Handle implements Handler.
func (r *Reporter) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID != "" {
		if _, dup := r.seen[e.ID]; dup {
			r.duplicates++
			return nil
		}
		r.seen[e.ID] = struct{}{}
	}
	r.events++

	t, ok := r.tallies[e.TourID]
	if !ok {
		t = &Tally{TourID: e.TourID, FirstSeen: e.OccurredAt}
		r.tallies[e.TourID] = t
	}
	t.Events++

	// Counts are absolute, so only a newer event may replace them.
	if !e.OccurredAt.Before(t.LastEventAt) {
		t.TourName = e.TourName
		t.Total = e.Total
		t.Visited = e.Visited
		t.ToReview = e.ToReview
		t.Skipped = e.Skipped
		t.Progress = e.Progress
		t.Completed = e.Completed
		t.LastEventAt = e.OccurredAt
	}
	if e.OccurredAt.Before(t.FirstSeen) {
		t.FirstSeen = e.OccurredAt
	}

	if t.Completed && !r.reported[e.TourID] {
		r.reported[e.TourID] = true
		r.logger.Info().
			Str("tour_id", t.TourID).
			Str("tour_name", t.TourName).
			Int("total", t.Total).
			Int("visited", t.Visited).
			Int("to_review", t.ToReview).
			Int("skipped", t.Skipped).
			Float64("progress", t.Progress).
			Dur("elapsed", t.LastEventAt.Sub(t.FirstSeen)).
			Msg("tour completion report")
	}
	return nil
}

// Tally returns a copy of the tally for a tour.
func (r *Reporter) Tally(tourID string) (Tally, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tallies[tourID]
	if !ok {
		return Tally{}, false
	}
	return *t, true
}

// Tallies returns all tallies, most recently active first.
func (r *Reporter) Tallies() []Tally {
	r.mu.RLock()
	out := make([]Tally, 0, len(r.tallies))
	for _, t := range r.tallies {
		out = append(out, *t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastEventAt.Equal(out[j].LastEventAt) {
			return out[i].LastEventAt.After(out[j].LastEventAt)
		}
		return out[i].TourID < out[j].TourID
	})
	return out
}

// Stats returns aggregate counters.
func (r *Reporter) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Tours:      len(r.tallies),
		Completed:  len(r.reported),
		Events:     r.events,
		Duplicates: r.duplicates,
	}
}
