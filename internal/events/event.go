// Package events publishes tour stop transitions for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldtour/fieldtour/internal/tour"
)

// TypeStopTransitioned is the type of every stop transition event.
const TypeStopTransitioned = "stop.transitioned"

// Event is the wire form of a committed stop transition.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	TourID     string    `json:"tourId"`
	TourName   string    `json:"tourName,omitempty"`
	SiteID     string    `json:"siteId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Completed  bool      `json:"completed"`
	Total      int       `json:"total"`
	Visited    int       `json:"visited"`
	ToReview   int       `json:"toReview"`
	Skipped    int       `json:"skipped"`
	OccurredAt time.Time `json:"occurredAt"`
}

// FromTransition builds the event for a transition.
func FromTransition(tr tour.Transition) Event {
	return Event{
		ID:         "evt_" + uuid.New().String()[:22],
		Type:       TypeStopTransitioned,
		TourID:     tr.Tour.ID,
		TourName:   tr.Tour.Name,
		SiteID:     tr.SiteID,
		Status:     tr.To.String(),
		Progress:   tr.Tour.Progress(),
		Completed:  tr.Tour.IsCompleted(),
		Total:      len(tr.Tour.Stops),
		Visited:    tr.Tour.VisitedCount(),
		ToReview:   tr.Tour.ToReviewCount(),
		Skipped:    tr.Tour.SkippedCount(),
		OccurredAt: tr.OccurredAt,
	}
}

// Encode returns the JSON payload.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if e.Type == "" || e.TourID == "" {
		return Event{}, fmt.Errorf("decoding event: missing type or tour id")
	}
	return e, nil
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
