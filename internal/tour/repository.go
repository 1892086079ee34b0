package tour

import (
	"context"
	"time"
)

// ListOptions contains options for listing tours.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of listing tours.
type ListResult struct {
	Items      []*Tour
	NextCursor string
}

// DefaultListLimit is used when ListOptions.Limit is not positive.
const DefaultListLimit = 50

// Repository defines the interface for tour persistence. Stops are keyed by
// (tour ID, site ID).
type Repository interface {
	// Create stores a tour with its stops.
	Create(ctx context.Context, t *Tour) error

	// Get retrieves a tour with its stops sorted by order.
	Get(ctx context.Context, id string) (*Tour, error)

	// List retrieves tours, newest first, with cursor pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Delete deletes a tour and its stops.
	Delete(ctx context.Context, id string) error

	// AppendStops adds stops to a tour. Returns ErrDuplicateSite if a site
	// is already on the tour. A completed tour is reopened.
	AppendStops(ctx context.Context, tourID string, stops []Stop) error

	// ApplyTransition moves one pending stop to update.To and, atomically,
	// stamps the tour's completion when no pending stops remain. Returns
	// ErrInvalidTransition when the stop is not pending. Returns the
	// committed tour.
	ApplyTransition(ctx context.Context, tourID string, update StopUpdate) (*Tour, error)

	// UpdateOrder assigns the order index of every stop, keyed by site ID.
	UpdateOrder(ctx context.Context, tourID string, order map[string]int) error

	// SetStarted stamps StartedAt. Returns ErrTourAlreadyStarted when it is
	// already set.
	SetStarted(ctx context.Context, tourID string, at time.Time) error

	// SetCompleted stamps CompletedAt unless it is already set.
	SetCompleted(ctx context.Context, tourID string, at time.Time) error
}
