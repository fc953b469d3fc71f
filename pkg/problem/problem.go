package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ContentType is the media type for serialized problems per RFC 9457.
const ContentType = "application/problem+json"

// Qualified type ids for every problem the gateway can surface.
// The ".v1" suffix versions the envelope contract, not the gateway.
const (
	TypeBadRequest          = "bad_request.v1"
	TypeForbidden           = "forbidden.v1"
	TypeNotFound            = "not_found.v1"
	TypeConflict            = "conflict.v1"
	TypeValidationFailed    = "validation_failed.v1"
	TypeInternal            = "internal.v1"
	TypeThrottled           = "gateway.throttled.v1"
	TypeUpstreamUnreachable = "gateway.upstream_unreachable.v1"
	TypeUpstreamTimeout     = "gateway.upstream_timeout.v1"
)

// Problem is the structured error envelope returned to callers.
type Problem struct {
	// Type is the qualified problem id (e.g. "not_found.v1").
	Type string `json:"type"`

	// Status is the HTTP status code for this occurrence.
	Status int `json:"status"`

	// Title is a short human-readable summary of the problem type.
	Title string `json:"title"`

	// Detail describes this specific occurrence. Optional.
	Detail string `json:"detail,omitempty"`

	// Metadata carries structured extension data (e.g. retry_after_ms).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Error implements the error interface.
func (p *Problem) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("%s: %s", p.Type, p.Detail)
	}
	return fmt.Sprintf("%s: %s", p.Type, p.Title)
}

// WithMeta returns p with the given metadata key set.
func (p *Problem) WithMeta(key string, value any) *Problem {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any, 1)
	}
	p.Metadata[key] = value
	return p
}

// New creates a problem with an explicit type, status and title.
func New(typeID string, status int, title string) *Problem {
	return &Problem{Type: typeID, Status: status, Title: title}
}

// BadRequest creates a 400 problem for malformed client input.
func BadRequest(detail string) *Problem {
	return &Problem{Type: TypeBadRequest, Status: http.StatusBadRequest, Title: "Bad Request", Detail: detail}
}

// Forbidden creates a 403 problem for authorization denials.
func Forbidden(detail string) *Problem {
	return &Problem{Type: TypeForbidden, Status: http.StatusForbidden, Title: "Forbidden", Detail: detail}
}

// NotFound creates a 404 problem for missing entities.
func NotFound(detail string) *Problem {
	return &Problem{Type: TypeNotFound, Status: http.StatusNotFound, Title: "Not Found", Detail: detail}
}

// Conflict creates a 409 problem for id or alias collisions.
func Conflict(detail string) *Problem {
	return &Problem{Type: TypeConflict, Status: http.StatusConflict, Title: "Conflict", Detail: detail}
}

// ValidationFailed creates a 422 problem with a field-scoped message.
func ValidationFailed(field, detail string) *Problem {
	p := &Problem{
		Type:   TypeValidationFailed,
		Status: http.StatusUnprocessableEntity,
		Title:  "Validation Failed",
		Detail: detail,
	}
	if field != "" {
		p.WithMeta("field", field)
	}
	return p
}

// Internal creates a 500 problem. Detail is kept generic at the boundary;
// the underlying cause belongs in logs, not in the envelope.
func Internal(detail string) *Problem {
	return &Problem{Type: TypeInternal, Status: http.StatusInternalServerError, Title: "Internal Error", Detail: detail}
}

// Throttled creates a 429 problem carrying the retry hint both as
// metadata (retry_after_ms) and, via Write, as a Retry-After header.
func Throttled(retryAfter time.Duration) *Problem {
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	p := &Problem{
		Type:   TypeThrottled,
		Status: http.StatusTooManyRequests,
		Title:  "Too Many Requests",
	}
	return p.WithMeta("retry_after_ms", retryAfter.Milliseconds())
}

// UpstreamUnreachable creates a 502 problem for connect failures after
// all endpoints have been exhausted.
func UpstreamUnreachable(detail string) *Problem {
	return &Problem{Type: TypeUpstreamUnreachable, Status: http.StatusBadGateway, Title: "Upstream Unreachable", Detail: detail}
}

// UpstreamTimeout creates a 504 problem for header-phase deadline expiry.
func UpstreamTimeout(detail string) *Problem {
	return &Problem{Type: TypeUpstreamTimeout, Status: http.StatusGatewayTimeout, Title: "Upstream Timeout", Detail: detail}
}

// From converts an arbitrary error into a problem. Problems pass through
// unchanged; everything else becomes internal.v1.
func From(err error) *Problem {
	var p *Problem
	if errors.As(err, &p) {
		return p
	}
	return Internal("unexpected error")
}

// Write serializes p to w with the problem content type. Throttled
// problems also emit a Retry-After header in whole seconds (minimum 1).
func Write(w http.ResponseWriter, p *Problem) {
	w.Header().Set("Content-Type", ContentType)
	if p.Type == TypeThrottled {
		if ms, ok := p.Metadata["retry_after_ms"].(int64); ok {
			secs := (ms + 999) / 1000
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
