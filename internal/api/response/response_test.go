package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/api/middleware"
	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/api/response"
	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/navigation"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// withRequestID runs target through the RequestID middleware so the context
// carries an ID, as it does in the router.
func withRequestID(target string) *http.Request {
	var out *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		out = r
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return out
}

func TestJSON_EchoesRequestID(t *testing.T) {
	req := withRequestID("/v1/tours")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestJSON_NoRequestIDOutsideMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()

	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody), http.StatusOK, nil)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestCreated_SetsLocation(t *testing.T) {
	rec := httptest.NewRecorder()

	response.Created(rec, withRequestID("/v1/tours"), "/v1/tours/tour_123", map[string]string{"id": "tour_123"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/tours/tour_123", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestNoContent_EmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()

	response.NoContent(rec, withRequestID("/v1/tours/tour_1"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestPage_LinkHeader(t *testing.T) {
	rec := httptest.NewRecorder()

	response.Page(rec, withRequestID("/v1/tours?limit=2&cursor=old"), []string{"a", "b"}, "next123")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `</v1/tours?cursor=next123&limit=2>; rel="next"`, rec.Header().Get("Link"))
}

func TestPage_LastPageHasNoLink(t *testing.T) {
	rec := httptest.NewRecorder()

	response.Page(rec, withRequestID("/v1/tours"), []string{}, "")

	assert.Empty(t, rec.Header().Get("Link"))
}

func TestBadRequest_FieldErrors(t *testing.T) {
	req := withRequestID("/v1/tours")
	rec := httptest.NewRecorder()

	response.BadRequest(rec, req, "request validation failed", []models.FieldError{
		{Field: "name", Message: "is required", Code: models.CodeRequired},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Equal(t, "/v1/tours", problem.Instance)
	assert.Equal(t, middleware.GetRequestID(req.Context()), problem.TraceID)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "name", problem.Errors[0].Field)
}

func TestProblemFor(t *testing.T) {
	validation := &models.ValidationError{}
	validation.Add("sites", models.CodeRequired, "at least one site is required")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", validation, http.StatusBadRequest, models.ProblemTypeValidation},
		{"tour not found", fmt.Errorf("get: %w", tour.ErrTourNotFound), http.StatusNotFound, models.ProblemTypeNotFound},
		{"stop not found", tour.ErrStopNotFound, http.StatusNotFound, models.ProblemTypeNotFound},
		{"session not found", navigation.ErrSessionNotFound, http.StatusNotFound, models.ProblemTypeNotFound},
		{"invalid transition", tour.ErrInvalidTransition, http.StatusConflict, models.ProblemTypeConflict},
		{"already started", tour.ErrTourAlreadyStarted, http.StatusConflict, models.ProblemTypeConflict},
		{"invalid order", tour.ErrInvalidOrder, http.StatusBadRequest, models.ProblemTypeValidation},
		{"invalid geometry", geo.ErrInvalidGeometry, http.StatusBadRequest, models.ProblemTypeValidation},
		{"provider down", &routing.Error{Provider: "osrm", Code: "HTTP_502", Err: routing.ErrProviderUnavailable}, http.StatusServiceUnavailable, models.ProblemTypeRoutingUnavailable},
		{"no route", routing.ErrNoRouteFound, http.StatusServiceUnavailable, models.ProblemTypeRoutingUnavailable},
		{"persistence", tour.ErrPersistence, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, models.ProblemTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := response.ProblemFor("req_1", tt.err)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, "req_1", p.TraceID)
		})
	}
}

func TestProblemFor_DoesNotLeakUnknownErrors(t *testing.T) {
	p := response.ProblemFor("req_1", errors.New("dial tcp 10.0.0.3:5432: connection refused"))

	assert.NotContains(t, p.Detail, "10.0.0.3")
}

func TestFromError_WritesProblem(t *testing.T) {
	rec := httptest.NewRecorder()

	response.FromError(rec, withRequestID("/v1/tours/tour_x"), tour.ErrTourNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
