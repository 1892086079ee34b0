package models

import (
	"fmt"
	"strings"
)

// ValidationError collects field errors found while checking a request body.
type ValidationError struct {
	Errors []FieldError
}

// Add records a field error.
func (e *ValidationError) Add(field, code, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any field error was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Err returns e when it holds errors and nil otherwise.
func (e *ValidationError) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field error codes.
const (
	CodeRequired   = "REQUIRED"
	CodeOutOfRange = "OUT_OF_RANGE"
	CodeInvalid    = "INVALID"
	CodeDuplicate  = "DUPLICATE"
)

// ValidatePoint checks latitude and longitude ranges.
func ValidatePoint(v *ValidationError, field string, p Point) {
	if p.Lat < -90 || p.Lat > 90 {
		v.Add(field+".lat", CodeOutOfRange, "must be between -90 and 90")
	}
	if p.Lon < -180 || p.Lon > 180 {
		v.Add(field+".lon", CodeOutOfRange, "must be between -180 and 180")
	}
}

// Validate checks a plan request.
func (r TourPlanRequest) Validate() error {
	var v ValidationError
	if strings.TrimSpace(r.Name) == "" {
		v.Add("name", CodeRequired, "is required")
	}
	if r.Start != nil {
		ValidatePoint(&v, "start", *r.Start)
	}
	if len(r.Sites) == 0 {
		v.Add("sites", CodeRequired, "at least one site is required")
	}
	validateSites(&v, r.Sites)
	return v.Err()
}

// Validate checks an append request.
func (r AppendStopsRequest) Validate() error {
	var v ValidationError
	if len(r.Sites) == 0 {
		v.Add("sites", CodeRequired, "at least one site is required")
	}
	validateSites(&v, r.Sites)
	return v.Err()
}

// Validate checks a position update.
func (p PositionUpdate) Validate() error {
	var v ValidationError
	ValidatePoint(&v, "position", Point{Lat: p.Lat, Lon: p.Lon})
	if p.AccuracyMeters < 0 {
		v.Add("accuracyMeters", CodeOutOfRange, "must not be negative")
	}
	return v.Err()
}

func validateSites(v *ValidationError, sites []SiteInput) {
	seen := make(map[string]int, len(sites))
	for i, s := range sites {
		field := fmt.Sprintf("sites[%d]", i)
		id := strings.TrimSpace(s.ID)
		if id == "" {
			v.Add(field+".id", CodeRequired, "is required")
			continue
		}
		if first, ok := seen[id]; ok {
			v.Add(field+".id", CodeDuplicate, "duplicates sites[%d]", first)
			continue
		}
		seen[id] = i
	}
}
