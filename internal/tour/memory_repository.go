package tour

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs tests and the default single-process deployment.
type InMemoryRepository struct {
	mu    sync.RWMutex
	tours map[string]*Tour
}

// NewInMemoryRepository creates a new in-memory tour repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tours: make(map[string]*Tour),
	}
}

// Create stores a tour with its stops.
func (r *InMemoryRepository) Create(_ context.Context, t *Tour) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(t.Stops))
	for _, s := range t.Stops {
		if seen[s.SiteID] {
			return ErrDuplicateSite
		}
		seen[s.SiteID] = true
	}

	cpy := t.Clone()
	cpy.SortStops()
	r.tours[t.ID] = cpy
	return nil
}

// Get retrieves a tour by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Tour, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tours[id]
	if !ok {
		return nil, ErrTourNotFound
	}
	return t.Clone(), nil
}

// List retrieves tours newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tours := make([]*Tour, 0, len(r.tours))
	for _, t := range r.tours {
		tours = append(tours, t.Clone())
	}
	sort.Slice(tours, func(i, j int) bool {
		if !tours[i].CreatedAt.Equal(tours[j].CreatedAt) {
			return tours[i].CreatedAt.After(tours[j].CreatedAt)
		}
		return tours[i].ID > tours[j].ID
	})

	if opts.Cursor != "" {
		for i, t := range tours {
			if t.ID == opts.Cursor {
				tours = tours[i+1:]
				break
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	result := &ListResult{Items: tours}
	if len(tours) > limit {
		result.Items = tours[:limit]
		result.NextCursor = tours[limit-1].ID
	}
	return result, nil
}

// Delete deletes a tour and its stops.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tours[id]; !ok {
		return ErrTourNotFound
	}
	delete(r.tours, id)
	return nil
}

// AppendStops adds stops to a tour.
func (r *InMemoryRepository) AppendStops(_ context.Context, tourID string, stops []Stop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tours[tourID]
	if !ok {
		return ErrTourNotFound
	}

	seen := make(map[string]bool, len(t.Stops)+len(stops))
	for _, s := range t.Stops {
		seen[s.SiteID] = true
	}
	for _, s := range stops {
		if seen[s.SiteID] {
			return ErrDuplicateSite
		}
		seen[s.SiteID] = true
	}

	for _, s := range stops {
		s.VisitedAt = cloneTime(s.VisitedAt)
		t.Stops = append(t.Stops, s)
	}
	t.CompletedAt = nil
	t.SortStops()
	return nil
}

// ApplyTransition moves one pending stop to a new status.
func (r *InMemoryRepository) ApplyTransition(_ context.Context, tourID string, update StopUpdate) (*Tour, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tours[tourID]
	if !ok {
		return nil, ErrTourNotFound
	}

	idx := -1
	for i := range t.Stops {
		if t.Stops[i].SiteID == update.SiteID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrStopNotFound
	}

	stop := &t.Stops[idx]
	if stop.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	stop.Status = update.To
	if update.VisitedAt != nil {
		stop.VisitedAt = cloneTime(update.VisitedAt)
	}
	if update.Notes != nil {
		stop.Notes = *update.Notes
	}
	if t.CompletedAt == nil && !update.CompleteAt.IsZero() && t.RemainingCount() == 0 {
		at := update.CompleteAt
		t.CompletedAt = &at
	}

	return t.Clone(), nil
}

// UpdateOrder assigns order indices by site ID.
func (r *InMemoryRepository) UpdateOrder(_ context.Context, tourID string, order map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tours[tourID]
	if !ok {
		return ErrTourNotFound
	}
	for _, s := range t.Stops {
		if _, ok := order[s.SiteID]; !ok {
			return ErrInvalidOrder
		}
	}
	for i := range t.Stops {
		t.Stops[i].Order = order[t.Stops[i].SiteID]
	}
	t.SortStops()
	return nil
}

// SetStarted stamps StartedAt once.
func (r *InMemoryRepository) SetStarted(_ context.Context, tourID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tours[tourID]
	if !ok {
		return ErrTourNotFound
	}
	if t.StartedAt != nil {
		return ErrTourAlreadyStarted
	}
	t.StartedAt = &at
	return nil
}

// SetCompleted stamps CompletedAt unless already set.
func (r *InMemoryRepository) SetCompleted(_ context.Context, tourID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tours[tourID]
	if !ok {
		return ErrTourNotFound
	}
	if t.CompletedAt == nil {
		t.CompletedAt = &at
	}
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
