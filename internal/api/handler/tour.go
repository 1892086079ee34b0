package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/api/response"
	"github.com/fieldtour/fieldtour/internal/planner"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// TourService is the tour lifecycle used by the handlers. *tour.Service
// satisfies it.
type TourService interface {
	Get(ctx context.Context, tourID string) (*tour.Tour, error)
	List(ctx context.Context, opts tour.ListOptions) (*tour.ListResult, error)
	Delete(ctx context.Context, tourID string) error
	AppendStops(ctx context.Context, tourID string, stops []tour.Stop) (*tour.Tour, error)
	Reorder(ctx context.Context, tourID string, siteIDs []string) (*tour.Tour, error)
	Start(ctx context.Context, tourID string) (*tour.Tour, error)
	Complete(ctx context.Context, tourID string) (*tour.Tour, error)
	MarkVisited(ctx context.Context, tourID, siteID string) (*tour.Tour, error)
	MarkToReview(ctx context.Context, tourID, siteID, notes string) (*tour.Tour, error)
	Skip(ctx context.Context, tourID, siteID string) (*tour.Tour, error)
}

// TourPlanner plans tours from sites. *planner.Planner satisfies it.
type TourPlanner interface {
	Plan(ctx context.Context, req planner.PlanRequest) (*planner.Plan, error)
	Stops(sites []planner.Site) ([]tour.Stop, []string)
}

// TourHandler handles tour endpoints.
type TourHandler struct {
	tours   TourService
	planner TourPlanner
}

// NewTourHandler creates a new TourHandler.
func NewTourHandler(tours TourService, p TourPlanner) *TourHandler {
	return &TourHandler{tours: tours, planner: p}
}

// PlanTour handles POST /v1/tours - plan and create a tour.
func (h *TourHandler) PlanTour(w http.ResponseWriter, r *http.Request) {
	var input models.TourPlanRequest
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := input.Validate(); err != nil {
		response.FromError(w, r, err)
		return
	}
	mode, err := routing.ParseTravelMode(input.Mode)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "mode", Message: "must be driving, cycling or walking", Code: models.CodeInvalid},
		})
		return
	}

	req := planner.PlanRequest{
		Name:  input.Name,
		Sites: lo.Map(input.Sites, func(s models.SiteInput, _ int) planner.Site { return s.Site() }),
		Mode:  mode,
	}
	if input.Start != nil {
		start := input.Start.Coordinate()
		req.Start = &start
	}

	plan, err := h.planner.Plan(r.Context(), req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/tours/%s", plan.Tour.ID)
	response.Created(w, r, location, models.TourPlanFrom(plan))
}

// ListTours handles GET /v1/tours - list tours newest first.
func (h *TourHandler) ListTours(w http.ResponseWriter, r *http.Request) {
	opts := tour.ListOptions{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			response.BadRequest(w, r, "limit must be between 1 and 200", []models.FieldError{
				{Field: "limit", Message: "must be between 1 and 200", Code: models.CodeOutOfRange},
			})
			return
		}
		opts.Limit = limit
	}

	result, err := h.tours.List(r.Context(), opts)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	page := models.PagedTours{
		Items: lo.Map(result.Items, func(t *tour.Tour, _ int) models.Tour { return models.TourFrom(t) }),
		Meta:  models.PagedResponseMeta{Limit: opts.Limit},
	}
	if page.Meta.Limit == 0 {
		page.Meta.Limit = tour.DefaultListLimit
	}
	if result.NextCursor != "" {
		page.Meta.NextCursor = &result.NextCursor
	}
	response.Page(w, r, page, result.NextCursor)
}

// GetTour handles GET /v1/tours/{tourId}.
func (h *TourHandler) GetTour(w http.ResponseWriter, r *http.Request) {
	t, err := h.tours.Get(r.Context(), chi.URLParam(r, "tourId"))
	h.writeTour(w, r, t, err)
}

// DeleteTour handles DELETE /v1/tours/{tourId}.
func (h *TourHandler) DeleteTour(w http.ResponseWriter, r *http.Request) {
	if err := h.tours.Delete(r.Context(), chi.URLParam(r, "tourId")); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// AppendStops handles POST /v1/tours/{tourId}/stops - add sites after the
// last stop.
func (h *TourHandler) AppendStops(w http.ResponseWriter, r *http.Request) {
	var input models.AppendStopsRequest
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := input.Validate(); err != nil {
		response.FromError(w, r, err)
		return
	}

	sites := lo.Map(input.Sites, func(s models.SiteInput, _ int) planner.Site { return s.Site() })
	stops, warnings := h.planner.Stops(sites)

	t, err := h.tours.AppendStops(r.Context(), chi.URLParam(r, "tourId"), stops)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.AppendedStops{Tour: models.TourFrom(t), Warnings: warnings})
}

// ReorderStops handles PUT /v1/tours/{tourId}/order.
func (h *TourHandler) ReorderStops(w http.ResponseWriter, r *http.Request) {
	var input models.ReorderRequest
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	t, err := h.tours.Reorder(r.Context(), chi.URLParam(r, "tourId"), input.SiteIDs)
	h.writeTour(w, r, t, err)
}

// StartTour handles POST /v1/tours/{tourId}/start.
func (h *TourHandler) StartTour(w http.ResponseWriter, r *http.Request) {
	t, err := h.tours.Start(r.Context(), chi.URLParam(r, "tourId"))
	h.writeTour(w, r, t, err)
}

// CompleteTour handles POST /v1/tours/{tourId}/complete.
func (h *TourHandler) CompleteTour(w http.ResponseWriter, r *http.Request) {
	t, err := h.tours.Complete(r.Context(), chi.URLParam(r, "tourId"))
	h.writeTour(w, r, t, err)
}

// VisitStop handles POST /v1/tours/{tourId}/stops/{siteId}/visit.
func (h *TourHandler) VisitStop(w http.ResponseWriter, r *http.Request) {
	t, err := h.tours.MarkVisited(r.Context(), chi.URLParam(r, "tourId"), chi.URLParam(r, "siteId"))
	h.writeTour(w, r, t, err)
}

// ReviewStop handles POST /v1/tours/{tourId}/stops/{siteId}/review. The
// body with notes is optional.
func (h *TourHandler) ReviewStop(w http.ResponseWriter, r *http.Request) {
	var input models.ReviewRequest
	if err := decodeJSON(w, r, &input, true); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	t, err := h.tours.MarkToReview(r.Context(), chi.URLParam(r, "tourId"), chi.URLParam(r, "siteId"), input.Notes)
	h.writeTour(w, r, t, err)
}

// SkipStop handles POST /v1/tours/{tourId}/stops/{siteId}/skip.
func (h *TourHandler) SkipStop(w http.ResponseWriter, r *http.Request) {
	t, err := h.tours.Skip(r.Context(), chi.URLParam(r, "tourId"), chi.URLParam(r, "siteId"))
	h.writeTour(w, r, t, err)
}

func (h *TourHandler) writeTour(w http.ResponseWriter, r *http.Request, t *tour.Tour, err error) {
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.TourFrom(t))
}
