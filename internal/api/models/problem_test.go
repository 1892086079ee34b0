package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtour/fieldtour/internal/api/models"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *models.Problem
		wantType   string
		wantTitle  string
		wantStatus int
	}{
		{"bad request", models.NewBadRequest("req_1", "bad", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"not found", models.NewNotFound("req_1", "tour not found"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict("req_1", "already started"), models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"too many", models.NewTooManyRequests("req_1", "slow down"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "oops"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"routing", models.NewRoutingUnavailable("req_1", "osrm down"), models.ProblemTypeRoutingUnavailable, "Routing unavailable", http.StatusServiceUnavailable},
		{"tls", models.NewTLSRequired("req_1"), models.ProblemTypeTLSRequired, "TLS required", http.StatusForbidden},
		{"media", models.NewUnsupportedMediaType("req_1", "json only"), models.ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantTitle, tt.problem.Title)
			assert.Equal(t, tt.wantStatus, tt.problem.Status)
			assert.Equal(t, "req_1", tt.problem.TraceID)
			assert.NotEmpty(t, tt.problem.Detail)
		})
	}
}

func TestNewProblem_UnknownTypeIsInternal(t *testing.T) {
	p := models.NewProblem("https://example.com/teapot", "req_1", "short and stout")

	assert.Equal(t, models.ProblemTypeInternal, p.Type)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.Equal(t, "short and stout", p.Detail)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "sites[0].id", Message: "is required", Code: models.CodeRequired},
	})
	p.Instance = "/v1/tours"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var got models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *p, got)
}

func TestProblem_WithExtension(t *testing.T) {
	p := models.NewRoutingUnavailable("req_123", "provider down").
		WithExtension("previousRoute", map[string]any{"distanceMeters": 1200.0})

	w := httptest.NewRecorder()
	p.Write(w)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	ext, ok := body["extensions"].(map[string]any)
	require.True(t, ok, "extensions member missing")
	prev, ok := ext["previousRoute"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1200.0, prev["distanceMeters"])
}

func TestProblem_OmitsEmptyMembers(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewConflict("req_123", "tour already started").Write(w)

	assert.NotContains(t, w.Body.String(), "extensions")
	assert.NotContains(t, w.Body.String(), "errors")
	assert.NotContains(t, w.Body.String(), "instance")
}
