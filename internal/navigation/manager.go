package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// Tours is the slice of tour.Service used by the Manager.
type Tours interface {
	Start(ctx context.Context, tourID string) (*tour.Tour, error)
	Get(ctx context.Context, tourID string) (*tour.Tour, error)
}

// ManagerConfig holds Manager dependencies.
type ManagerConfig struct {
	Tours  Tours
	Router Router
	// Location supplies the initial position. Optional.
	Location location.Source
	// Fallback is the initial position when Location has no fix.
	Fallback     geo.Coordinate
	Logger       zerolog.Logger
	Metrics      Recorder
	RouteTimeout time.Duration
	Now          func() time.Time
}

// Manager keeps one session per tour and forwards stop transitions and tour
// changes to it.
type Manager struct {
	tours    Tours
	router   Router
	location location.Source
	logger   zerolog.Logger
	metrics  Recorder
	timeout  time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a navigation manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		tours:    cfg.Tours,
		router:   cfg.Router,
		location: location.WithFallback(cfg.Location, cfg.Fallback),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		timeout:  cfg.RouteTimeout,
		now:      cfg.Now,
		sessions: make(map[string]*Session),
	}
}

// Open starts the tour, or resumes it if it was already started, and opens a
// session positioned at the current location. An existing session for the
// tour is replaced. The first route refresh failing does not fail Open; it
// shows up as the snapshot's LastError.
func (m *Manager) Open(ctx context.Context, tourID string, mode routing.TravelMode) (*Session, error) {
	t, err := m.tours.Start(ctx, tourID)
	if errors.Is(err, tour.ErrTourAlreadyStarted) {
		m.logger.Debug().Str("tour_id", tourID).Msg("resuming started tour")
		t, err = m.tours.Get(ctx, tourID)
	}
	if err != nil {
		return nil, err
	}

	fix, _ := m.location.Current(ctx)

	session := NewSession(SessionConfig{
		Tour:     t,
		Position: fix,
		Mode:     mode,
		Router:   m.router,
		Logger:   m.logger,
		Metrics:  m.metrics,
		Timeout:  m.timeout,
		Now:      m.now,
	})

	m.mu.Lock()
	previous := m.sessions[tourID]
	m.sessions[tourID] = session
	m.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	_, _ = session.RefreshRoute(ctx)

	m.logger.Info().
		Str("tour_id", tourID).
		Str("mode", string(session.Snapshot().Mode)).
		Msg("navigation opened")

	return session, nil
}

// Get returns the open session for a tour.
func (m *Manager) Get(tourID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tourID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets the session for a tour.
func (m *Manager) Close(tourID string) error {
	m.mu.Lock()
	s, ok := m.sessions[tourID]
	delete(m.sessions, tourID)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.logger.Info().Str("tour_id", tourID).Msg("navigation closed")
	return nil
}

// ActiveSessions returns the number of open sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// OnStopTransition implements tour.Listener.
func (m *Manager) OnStopTransition(ctx context.Context, tr tour.Transition) {
	s, err := m.Get(tr.Tour.ID)
	if err != nil {
		return
	}
	if _, err := s.ApplyTour(ctx, tr.Tour); err != nil && !errors.Is(err, ErrSessionClosed) {
		m.logger.Warn().
			Err(err).
			Str("tour_id", tr.Tour.ID).
			Str("site_id", tr.SiteID).
			Msg("route refresh after transition failed")
	}
}

// OnTourChanged implements tour.ChangeListener. A deleted tour's session is
// closed; otherwise the session takes the new stop list and reroutes to its
// next stop.
func (m *Manager) OnTourChanged(ctx context.Context, c tour.Change) {
	if c.Kind == tour.ChangeDeleted {
		if err := m.Close(c.TourID); err == nil {
			m.logger.Info().Str("tour_id", c.TourID).Msg("navigation closed for deleted tour")
		}
		return
	}
	s, err := m.Get(c.TourID)
	if err != nil {
		return
	}
	if _, err := s.ApplyTour(ctx, c.Tour); err != nil && !errors.Is(err, ErrSessionClosed) {
		m.logger.Warn().
			Err(err).
			Str("tour_id", c.TourID).
			Str("change", string(c.Kind)).
			Msg("route refresh after tour change failed")
	}
}

var (
	_ tour.Listener       = (*Manager)(nil)
	_ tour.ChangeListener = (*Manager)(nil)
)
