// Package response writes JSON and problem responses for the fieldtour API.
package response

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/fieldtour/fieldtour/internal/api/middleware"
	"github.com/fieldtour/fieldtour/internal/api/models"
)

// JSON writes data as JSON with the given status. The request ID is echoed in
// X-Request-Id for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	echoRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Created writes a 201 with a Location header pointing at the new resource.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// Page writes a 200 list response. When nextCursor is set a Link header with
// rel="next" carries the request URL with the cursor replaced.
func Page(w http.ResponseWriter, r *http.Request, data any, nextCursor string) {
	if nextCursor != "" {
		next := url.URL{Path: r.URL.Path}
		q := r.URL.Query()
		q.Set("cursor", nextCursor)
		next.RawQuery = q.Encode()
		w.Header().Set("Link", "<"+next.String()+`>; rel="next"`)
	}
	JSON(w, r, http.StatusOK, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	echoRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes problem as application/problem+json. Instance is set to the
// request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	echoRequestID(w, r)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 problem with optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

func echoRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}
