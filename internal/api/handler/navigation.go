package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtour/fieldtour/internal/api/middleware"
	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/api/response"
	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/navigation"
	"github.com/fieldtour/fieldtour/internal/routing"
)

// NavigationManager owns navigation sessions. *navigation.Manager satisfies
// it.
type NavigationManager interface {
	Open(ctx context.Context, tourID string, mode routing.TravelMode) (*navigation.Session, error)
	Get(tourID string) (*navigation.Session, error)
	Close(tourID string) error
	ActiveSessions() int
}

// PositionSink receives device fixes. *location.Tracker satisfies it.
type PositionSink interface {
	Update(fix location.Fix)
}

// NavigationHandler handles navigation endpoints.
type NavigationHandler struct {
	manager NavigationManager
	sink    PositionSink
}

// NewNavigationHandler creates a new NavigationHandler. sink may be nil.
func NewNavigationHandler(manager NavigationManager, sink PositionSink) *NavigationHandler {
	return &NavigationHandler{manager: manager, sink: sink}
}

// OpenNavigation handles POST /v1/tours/{tourId}/navigation - start or
// resume the tour and route to its next stop.
func (h *NavigationHandler) OpenNavigation(w http.ResponseWriter, r *http.Request) {
	var input models.NavigationOpenRequest
	if err := decodeJSON(w, r, &input, true); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	mode, err := routing.ParseTravelMode(input.Mode)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "mode", Message: "must be driving, cycling or walking", Code: models.CodeInvalid},
		})
		return
	}

	session, err := h.manager.Open(r.Context(), chi.URLParam(r, "tourId"), mode)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NavigationFrom(session.Snapshot()))
}

// GetNavigation handles GET /v1/tours/{tourId}/navigation.
func (h *NavigationHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(chi.URLParam(r, "tourId"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NavigationFrom(session.Snapshot()))
}

// UpdatePosition handles PUT /v1/tours/{tourId}/navigation/position. The
// route is not recomputed; clients call refresh when they want one.
func (h *NavigationHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var input models.PositionUpdate
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := input.Validate(); err != nil {
		response.FromError(w, r, err)
		return
	}

	session, err := h.manager.Get(chi.URLParam(r, "tourId"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	fix := input.Fix()
	if err := session.RefreshPosition(fix); err != nil {
		response.FromError(w, r, err)
		return
	}
	if h.sink != nil {
		h.sink.Update(fix)
	}
	response.JSON(w, r, http.StatusOK, models.NavigationFrom(session.Snapshot()))
}

// RefreshRoute handles POST /v1/tours/{tourId}/navigation/refresh. When the
// routing provider fails the response is a 503 problem that still carries
// the previous route under extensions.previousRoute.
func (h *NavigationHandler) RefreshRoute(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(chi.URLParam(r, "tourId"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	prev, err := session.RefreshRoute(r.Context())
	switch {
	case err == nil, errors.Is(err, navigation.ErrRefreshSuperseded):
		response.JSON(w, r, http.StatusOK, models.NavigationFrom(session.Snapshot()))
	case errors.Is(err, routing.ErrProviderUnavailable):
		problem := models.NewRoutingUnavailable(middleware.GetRequestID(r.Context()), err.Error())
		if route := models.RouteFrom(prev); route != nil {
			problem.WithExtension("previousRoute", route)
		}
		response.Error(w, r, problem)
	default:
		response.FromError(w, r, err)
	}
}

// CloseNavigation handles DELETE /v1/tours/{tourId}/navigation.
func (h *NavigationHandler) CloseNavigation(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "tourId")); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}
