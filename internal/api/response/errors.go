package response

import (
	"errors"
	"net/http"

	"github.com/fieldtour/fieldtour/internal/api/middleware"
	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/navigation"
	"github.com/fieldtour/fieldtour/internal/planner"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// FromError maps a domain error onto a Problem and writes it. Unknown errors
// become a 500 without leaking their text.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	Error(w, r, ProblemFor(middleware.GetRequestID(r.Context()), err))
}

// ProblemFor returns the Problem for a domain error.
func ProblemFor(traceID string, err error) *models.Problem {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return models.NewBadRequest(traceID, "request validation failed", verr.Errors)
	}

	switch {
	case errors.Is(err, tour.ErrTourNotFound),
		errors.Is(err, tour.ErrStopNotFound),
		errors.Is(err, navigation.ErrSessionNotFound):
		return models.NewNotFound(traceID, err.Error())

	case errors.Is(err, tour.ErrInvalidTransition),
		errors.Is(err, tour.ErrTourAlreadyStarted),
		errors.Is(err, navigation.ErrSessionClosed),
		errors.Is(err, navigation.ErrRefreshSuperseded):
		return models.NewConflict(traceID, err.Error())

	case errors.Is(err, tour.ErrInvalidOrder),
		errors.Is(err, tour.ErrDuplicateSite),
		errors.Is(err, geo.ErrInvalidGeometry),
		errors.Is(err, planner.ErrInvalidSite),
		errors.Is(err, routing.ErrInvalidCoordinates):
		return models.NewBadRequest(traceID, err.Error(), nil)

	case errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, routing.ErrNoRouteFound),
		errors.Is(err, routing.ErrRateLimitExceeded),
		errors.Is(err, routing.ErrMalformedResponse):
		return models.NewRoutingUnavailable(traceID, err.Error())

	case errors.Is(err, tour.ErrPersistence):
		return models.NewInternalError(traceID, "tour storage failed")

	default:
		return models.NewInternalError(traceID, "an unexpected error occurred")
	}
}
