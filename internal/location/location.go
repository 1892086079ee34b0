// Package location supplies the device position used to start tours and
// route toward the next stop.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// ErrNoFix is returned when no position has been reported yet.
var ErrNoFix = errors.New("no location fix available")

// Fix is a single reported position.
type Fix struct {
	Coordinate     geo.Coordinate `json:"coordinate"`
	AccuracyMeters float64        `json:"accuracyMeters,omitempty"`
	RecordedAt     time.Time      `json:"recordedAt"`
}

// Source returns the current device position.
type Source interface {
	Current(ctx context.Context) (Fix, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Fix, error)

// Current calls f.
func (f SourceFunc) Current(ctx context.Context) (Fix, error) { return f(ctx) }

// Tracker keeps the most recent fix pushed by a client.
type Tracker struct {
	mu     sync.RWMutex
	latest *Fix
	maxAge time.Duration
	now    func() time.Time
}

// NewTracker creates a tracker. Fixes older than maxAge are reported as
// ErrNoFix; zero disables expiry.
func NewTracker(maxAge time.Duration) *Tracker {
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// Update records a fix. A zero RecordedAt is stamped with the current time.
// Fixes older than the stored one are ignored.
func (t *Tracker) Update(fix Fix) {
	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest != nil && fix.RecordedAt.Before(t.latest.RecordedAt) {
		return
	}
	t.latest = &fix
}

// Current returns the latest fix.
func (t *Tracker) Current(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return Fix{}, ErrNoFix
	}
	if t.maxAge > 0 && t.now().Sub(t.latest.RecordedAt) > t.maxAge {
		return Fix{}, ErrNoFix
	}
	return *t.latest, nil
}

type fallback struct {
	source   Source
	fallback geo.Coordinate
	now      func() time.Time
}

// WithFallback wraps source so Current never fails. When source is nil or
// returns an error, a fix at coord is returned instead.
func WithFallback(source Source, coord geo.Coordinate) Source {
	return &fallback{source: source, fallback: coord, now: time.Now}
}

func (f *fallback) Current(ctx context.Context) (Fix, error) {
	if f.source != nil {
		if fix, err := f.source.Current(ctx); err == nil {
			return fix, nil
		}
	}
	return Fix{Coordinate: f.fallback, RecordedAt: f.now().UTC()}, nil
}
