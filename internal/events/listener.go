package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/tour"
)

// DefaultPublishTimeout bounds a single publish from the listener.
const DefaultPublishTimeout = 5 * time.Second

// Listener publishes every stop transition. Publish failures are logged and
// never affect the transition itself.
type Listener struct {
	publisher Publisher
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewListener creates a transition listener for publisher.
func NewListener(publisher Publisher, logger zerolog.Logger) *Listener {
	return &Listener{publisher: publisher, timeout: DefaultPublishTimeout, logger: logger}
}

// OnStopTransition implements tour.Listener.
func (l *Listener) OnStopTransition(ctx context.Context, tr tour.Transition) {
	// The publish outlives a cancelled request but not the timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	e := FromTransition(tr)
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Error().
			Err(err).
			Str("tour_id", e.TourID).
			Str("site_id", e.SiteID).
			Msg("failed to publish tour event")
	}
}

var _ tour.Listener = (*Listener)(nil)
