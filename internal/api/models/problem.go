package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, echoed so clients can quote it.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`

	// Extensions carries problem-specific members such as the last good
	// route when a refresh fails.
	Extensions map[string]any `json:"extensions,omitempty"`
}

// FieldError points at one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation         = "https://api.fieldtour.dev/problems/validation-error"
	ProblemTypeNotFound           = "https://api.fieldtour.dev/problems/not-found"
	ProblemTypeConflict           = "https://api.fieldtour.dev/problems/conflict"
	ProblemTypeTooManyRequests    = "https://api.fieldtour.dev/problems/too-many-requests"
	ProblemTypeInternal           = "https://api.fieldtour.dev/problems/internal-error"
	ProblemTypeRoutingUnavailable = "https://api.fieldtour.dev/problems/routing-unavailable"
	ProblemTypeTLSRequired        = "https://api.fieldtour.dev/problems/tls-required"
	ProblemTypeUnsupportedMedia   = "https://api.fieldtour.dev/problems/unsupported-media-type"
)

type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:         {"Validation error", http.StatusBadRequest},
	ProblemTypeNotFound:           {"Not found", http.StatusNotFound},
	ProblemTypeConflict:           {"Conflict", http.StatusConflict},
	ProblemTypeTooManyRequests:    {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:           {"Internal server error", http.StatusInternalServerError},
	ProblemTypeRoutingUnavailable: {"Routing unavailable", http.StatusServiceUnavailable},
	ProblemTypeTLSRequired:        {"TLS required", http.StatusForbidden},
	ProblemTypeUnsupportedMedia:   {"Unsupported media type", http.StatusUnsupportedMediaType},
}

// NewProblem builds a problem of a known type; title and status follow from
// the type. Unknown types are reported as internal errors.
func NewProblem(problemType, traceID, detail string) *Problem {
	kind, ok := problemKinds[problemType]
	if !ok {
		problemType, kind = ProblemTypeInternal, problemKinds[ProblemTypeInternal]
	}
	return &Problem{
		Type:    problemType,
		Title:   kind.title,
		Status:  kind.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithExtension sets an extension member.
func (p *Problem) WithExtension(key string, value any) *Problem {
	if p.Extensions == nil {
		p.Extensions = make(map[string]any)
	}
	p.Extensions[key] = value
	return p
}

// Write sends the problem with its status and the request ID header.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 validation problem listing the offending fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := NewProblem(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, traceID, detail)
}

func NewConflict(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeConflict, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, traceID, detail)
}

// NewRoutingUnavailable is the 503 returned when no route could be computed.
func NewRoutingUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeRoutingUnavailable, traceID, detail)
}

func NewTLSRequired(traceID string) *Problem {
	return NewProblem(ProblemTypeTLSRequired, traceID, "This endpoint requires HTTPS")
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnsupportedMedia, traceID, detail)
}
