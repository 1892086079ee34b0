// Package tour holds visit tours, their stops, and the per-stop lifecycle.
package tour

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/fieldtour/fieldtour/internal/geo"
)

// Tour errors.
var (
	ErrTourNotFound       = errors.New("tour not found")
	ErrStopNotFound       = errors.New("stop not found")
	ErrInvalidTransition  = errors.New("invalid stop transition")
	ErrInvalidOrder       = errors.New("order must be a permutation of the tour's sites")
	ErrDuplicateSite      = errors.New("site already on tour")
	ErrTourAlreadyStarted = errors.New("tour already started")
	ErrPersistence        = errors.New("tour persistence failure")
)

// Status is the lifecycle state of a stop.
type Status uint8

// Stop statuses. Every stop starts pending and leaves it exactly once.
const (
	StatusPending Status = iota
	StatusVisited
	StatusToReview
	StatusSkipped
)

var statusNames = [...]string{
	StatusPending:  "pending",
	StatusVisited:  "visited",
	StatusToReview: "to_review",
	StatusSkipped:  "skipped",
}

// ParseStatus parses a stored status string.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stop status %q", s)
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid stop status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Stop is one site on a tour. Name, Address, SiteType and Position are a
// snapshot taken when the tour was planned; later edits to the site do not
// reach the stop.
type Stop struct {
	ID        string
	TourID    string
	SiteID    string
	Name      string
	Address   string
	SiteType  string
	Position  geo.Coordinate
	Status    Status
	VisitedAt *time.Time
	Notes     string
	Order     int
}

// Tour is an ordered set of stops. Stops are kept sorted by Order.
type Tour struct {
	ID          string
	Name        string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Stops       []Stop
}

func (t *Tour) count(status Status) int {
	return lo.CountBy(t.Stops, func(s Stop) bool { return s.Status == status })
}

// VisitedCount returns the number of visited stops.
func (t *Tour) VisitedCount() int { return t.count(StatusVisited) }

// ToReviewCount returns the number of stops flagged for review.
func (t *Tour) ToReviewCount() int { return t.count(StatusToReview) }

// SkippedCount returns the number of skipped stops.
func (t *Tour) SkippedCount() int { return t.count(StatusSkipped) }

// RemainingCount returns the number of pending stops.
func (t *Tour) RemainingCount() int { return t.count(StatusPending) }

// Progress returns the visited share of all stops as a percentage.
func (t *Tour) Progress() float64 {
	if len(t.Stops) == 0 {
		return 0
	}
	return float64(t.VisitedCount()) / float64(len(t.Stops)) * 100
}

// IsCompleted reports whether the tour has stops and none are pending.
func (t *Tour) IsCompleted() bool {
	return len(t.Stops) > 0 && t.RemainingCount() == 0
}

// NextStop returns a copy of the lowest-order pending stop, or nil.
func (t *Tour) NextStop() *Stop {
	var next *Stop
	for i := range t.Stops {
		s := &t.Stops[i]
		if s.Status != StatusPending {
			continue
		}
		if next == nil || s.Order < next.Order {
			next = s
		}
	}
	if next == nil {
		return nil
	}
	cpy := *next
	return &cpy
}

// FindStop returns a copy of the stop for siteID.
func (t *Tour) FindStop(siteID string) (*Stop, bool) {
	for i := range t.Stops {
		if t.Stops[i].SiteID == siteID {
			cpy := t.Stops[i]
			return &cpy, true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (t *Tour) Clone() *Tour {
	cpy := *t
	cpy.StartedAt = cloneTime(t.StartedAt)
	cpy.CompletedAt = cloneTime(t.CompletedAt)
	cpy.Stops = make([]Stop, len(t.Stops))
	for i, s := range t.Stops {
		s.VisitedAt = cloneTime(s.VisitedAt)
		cpy.Stops[i] = s
	}
	return &cpy
}

// SortStops orders stops by Order.
func (t *Tour) SortStops() {
	sort.SliceStable(t.Stops, func(i, j int) bool { return t.Stops[i].Order < t.Stops[j].Order })
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cpy := *t
	return &cpy
}

// StopUpdate is a single status change applied by Repository.ApplyTransition.
type StopUpdate struct {
	SiteID string
	To     Status

	// VisitedAt is stamped on the stop when set.
	VisitedAt *time.Time

	// Notes replaces the stop notes when set.
	Notes *string

	// CompleteAt stamps the tour's CompletedAt when the update leaves no
	// pending stops and the tour is not already completed.
	CompleteAt time.Time
}
