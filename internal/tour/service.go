package tour

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Transition describes one committed stop status change.
type Transition struct {
	// Tour is the committed post-transition snapshot. Each listener receives
	// its own copy.
	Tour       *Tour
	SiteID     string
	From       Status
	To         Status
	OccurredAt time.Time
}

// Listener is notified after every committed stop transition.
type Listener interface {
	OnStopTransition(ctx context.Context, t Transition)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, t Transition)

// OnStopTransition calls f.
func (f ListenerFunc) OnStopTransition(ctx context.Context, t Transition) { f(ctx, t) }

// ChangeKind names a structural change to a tour.
type ChangeKind string

const (
	ChangeReordered     ChangeKind = "reordered"
	ChangeStopsAppended ChangeKind = "stops_appended"
	ChangeDeleted       ChangeKind = "deleted"
)

// Change describes a committed reorder, append or delete. Tour is the
// post-change snapshot and is nil for ChangeDeleted.
type Change struct {
	TourID string
	Kind   ChangeKind
	Tour   *Tour
}

// ChangeListener is an optional extension of Listener for subscribers that
// also follow changes to the stop list itself.
type ChangeListener interface {
	OnTourChanged(ctx context.Context, c Change)
}

// Recorder counts transitions. telemetry.PlanningMetrics satisfies it.
type Recorder interface {
	RecordTransition(ctx context.Context, status string)
}

// ServiceConfig holds configuration for the tour service.
type ServiceConfig struct {
	// Repository persists tours (required).
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger

	// Listeners are notified after each transition. More can be added with
	// Subscribe.
	Listeners []Listener

	// Metrics counts transitions. Optional.
	Metrics Recorder

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Service runs the stop lifecycle on top of a Repository.
type Service struct {
	repo    Repository
	logger  zerolog.Logger
	metrics Recorder
	now     func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// NewService creates a new tour service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repository,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		listeners: append([]Listener(nil), cfg.Listeners...),
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Subscribe adds a transition listener. Listeners that implement
// ChangeListener also receive reorders, appended stops and deletions.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// NewTourID returns a fresh tour identifier.
func NewTourID() string {
	return "tour_" + uuid.New().String()[:22]
}

// NewStopID returns a fresh stop identifier.
func NewStopID() string {
	return "stp_" + uuid.New().String()[:22]
}

// Create stores a new tour. Stops keep their given order and are renumbered
// 0..n-1; IDs and statuses are reset.
func (s *Service) Create(ctx context.Context, name string, stops []Stop) (*Tour, error) {
	t := &Tour{
		ID:        NewTourID(),
		Name:      name,
		CreatedAt: s.now().UTC(),
		Stops:     make([]Stop, len(stops)),
	}
	for i, stop := range stops {
		stop.ID = NewStopID()
		stop.TourID = t.ID
		stop.Status = StatusPending
		stop.VisitedAt = nil
		stop.Order = i
		t.Stops[i] = stop
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, s.wrap(err)
	}

	s.logger.Info().
		Str("tour_id", t.ID).
		Int("stops", len(t.Stops)).
		Msg("tour created")

	return t.Clone(), nil
}

// Get retrieves a tour.
func (s *Service) Get(ctx context.Context, tourID string) (*Tour, error) {
	t, err := s.repo.Get(ctx, tourID)
	if err != nil {
		return nil, s.wrap(err)
	}
	return t, nil
}

// List retrieves tours newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	result, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, s.wrap(err)
	}
	return result, nil
}

// Delete deletes a tour and its stops.
func (s *Service) Delete(ctx context.Context, tourID string) error {
	if err := s.repo.Delete(ctx, tourID); err != nil {
		return s.wrap(err)
	}
	s.logger.Info().Str("tour_id", tourID).Msg("tour deleted")
	s.notifyChange(ctx, Change{TourID: tourID, Kind: ChangeDeleted})
	return nil
}

// AppendStops adds stops after the current last stop.
func (s *Service) AppendStops(ctx context.Context, tourID string, stops []Stop) (*Tour, error) {
	t, err := s.repo.Get(ctx, tourID)
	if err != nil {
		return nil, s.wrap(err)
	}
	if len(stops) == 0 {
		return t, nil
	}

	next := 0
	if len(t.Stops) > 0 {
		next = lo.MaxBy(t.Stops, func(a, b Stop) bool { return a.Order > b.Order }).Order + 1
	}

	added := make([]Stop, len(stops))
	for i, stop := range stops {
		stop.ID = NewStopID()
		stop.TourID = tourID
		stop.Status = StatusPending
		stop.VisitedAt = nil
		stop.Order = next + i
		added[i] = stop
	}

	if err := s.repo.AppendStops(ctx, tourID, added); err != nil {
		return nil, s.wrap(err)
	}
	return s.changed(ctx, tourID, ChangeStopsAppended)
}

// MarkVisited marks a pending stop visited and stamps its visit time.
func (s *Service) MarkVisited(ctx context.Context, tourID, siteID string) (*Tour, error) {
	now := s.now().UTC()
	return s.transition(ctx, tourID, StopUpdate{SiteID: siteID, To: StatusVisited, VisitedAt: &now})
}

// MarkToReview flags a pending stop for review. Empty notes leave the
// existing notes untouched.
func (s *Service) MarkToReview(ctx context.Context, tourID, siteID, notes string) (*Tour, error) {
	update := StopUpdate{SiteID: siteID, To: StatusToReview}
	if notes != "" {
		update.Notes = &notes
	}
	return s.transition(ctx, tourID, update)
}

// Skip marks a pending stop skipped.
func (s *Service) Skip(ctx context.Context, tourID, siteID string) (*Tour, error) {
	return s.transition(ctx, tourID, StopUpdate{SiteID: siteID, To: StatusSkipped})
}

func (s *Service) transition(ctx context.Context, tourID string, update StopUpdate) (*Tour, error) {
	now := s.now().UTC()
	update.CompleteAt = now

	t, err := s.repo.ApplyTransition(ctx, tourID, update)
	if err != nil {
		return nil, s.wrap(err)
	}

	s.logger.Info().
		Str("tour_id", tourID).
		Str("site_id", update.SiteID).
		Str("status", update.To.String()).
		Int("remaining", t.RemainingCount()).
		Bool("completed", t.IsCompleted()).
		Msg("stop transitioned")

	if s.metrics != nil {
		s.metrics.RecordTransition(ctx, update.To.String())
	}

	s.notify(ctx, Transition{
		Tour:       t,
		SiteID:     update.SiteID,
		From:       StatusPending,
		To:         update.To,
		OccurredAt: now,
	})

	return t.Clone(), nil
}

func (s *Service) notify(ctx context.Context, tr Transition) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		cpy := tr
		cpy.Tour = tr.Tour.Clone()
		l.OnStopTransition(ctx, cpy)
	}
}

// changed reloads a tour after a committed change and tells change listeners.
func (s *Service) changed(ctx context.Context, tourID string, kind ChangeKind) (*Tour, error) {
	t, err := s.Get(ctx, tourID)
	if err != nil {
		return nil, err
	}
	s.notifyChange(ctx, Change{TourID: tourID, Kind: kind, Tour: t})
	return t.Clone(), nil
}

func (s *Service) notifyChange(ctx context.Context, c Change) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		cl, ok := l.(ChangeListener)
		if !ok {
			continue
		}
		cpy := c
		if c.Tour != nil {
			cpy.Tour = c.Tour.Clone()
		}
		cl.OnTourChanged(ctx, cpy)
	}
}

// Reorder sets the visit order. siteIDs must contain every site on the tour
// exactly once.
func (s *Service) Reorder(ctx context.Context, tourID string, siteIDs []string) (*Tour, error) {
	t, err := s.repo.Get(ctx, tourID)
	if err != nil {
		return nil, s.wrap(err)
	}

	current := lo.Map(t.Stops, func(st Stop, _ int) string { return st.SiteID })
	if len(siteIDs) != len(current) || len(lo.Uniq(siteIDs)) != len(siteIDs) || len(lo.Without(siteIDs, current...)) != 0 {
		return nil, ErrInvalidOrder
	}

	order := make(map[string]int, len(siteIDs))
	for i, id := range siteIDs {
		order[id] = i
	}
	if err := s.repo.UpdateOrder(ctx, tourID, order); err != nil {
		return nil, s.wrap(err)
	}
	return s.changed(ctx, tourID, ChangeReordered)
}

// Start stamps the tour's start time. A started tour returns
// ErrTourAlreadyStarted and keeps its original start time.
func (s *Service) Start(ctx context.Context, tourID string) (*Tour, error) {
	if err := s.repo.SetStarted(ctx, tourID, s.now().UTC()); err != nil {
		return nil, s.wrap(err)
	}
	s.logger.Info().Str("tour_id", tourID).Msg("tour started")
	return s.Get(ctx, tourID)
}

// Complete stamps the tour's completion time if it is not already set.
func (s *Service) Complete(ctx context.Context, tourID string) (*Tour, error) {
	if err := s.repo.SetCompleted(ctx, tourID, s.now().UTC()); err != nil {
		return nil, s.wrap(err)
	}
	return s.Get(ctx, tourID)
}

// wrap passes domain errors through and reports anything else from the
// repository as ErrPersistence.
func (s *Service) wrap(err error) error {
	for _, sentinel := range []error{
		ErrTourNotFound, ErrStopNotFound, ErrInvalidTransition,
		ErrInvalidOrder, ErrDuplicateSite, ErrTourAlreadyStarted, ErrPersistence,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	s.logger.Error().Err(err).Msg("tour repository failure")
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
