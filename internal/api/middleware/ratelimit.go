package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/fieldtour/fieldtour/internal/api/models"
)

// RateLimit is a sliding-window budget of Requests per Window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Budgets applied by the router. PlanningLimit guards tour planning, which
// may call the trip optimizer; NavigationLimit is shared by every device
// refreshing the same tour.
var (
	PlanningLimit   = RateLimit{Requests: 30, Window: time.Minute}
	NavigationLimit = RateLimit{Requests: 60, Window: time.Minute}
	StandardLimit   = RateLimit{Requests: 100, Window: time.Minute}
)

// ByIP limits per client IP, as resolved by chi's RealIP.
func (l RateLimit) ByIP() func(http.Handler) http.Handler {
	return l.limiter(httprate.KeyByRealIP)
}

// ByTour limits per {tourId} route parameter and falls back to the client
// IP on routes without one.
func (l RateLimit) ByTour() func(http.Handler) http.Handler {
	return l.limiter(func(r *http.Request) (string, error) {
		if tourID := chi.URLParam(r, "tourId"); tourID != "" {
			return "tour:" + tourID, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func (l RateLimit) limiter(key httprate.KeyFunc) func(http.Handler) http.Handler {
	// httprate does not expose the reset time; one full window is an upper bound.
	retryAfter := strconv.Itoa(int(math.Ceil(l.Window.Seconds())))

	return httprate.Limit(l.Requests, l.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
