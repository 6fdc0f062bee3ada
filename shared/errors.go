package shared

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// UpstreamErrorKind classifies failures of the external vulnerability feed.
type UpstreamErrorKind string

const (
	// UpstreamUnreachable means the transport could not reach the feed at all.
	UpstreamUnreachable UpstreamErrorKind = "unreachable"
	// UpstreamRejected means the feed answered with a non-success HTTP status.
	UpstreamRejected UpstreamErrorKind = "rejected"
	// UpstreamMalformed means the feed's response body did not parse as expected.
	UpstreamMalformed UpstreamErrorKind = "malformed"
)

// UpstreamError is a classified failure of the upstream feed. It is surfaced
// at the HTTP boundary as a 502 and is never retried automatically.
type UpstreamError struct {
	Kind       UpstreamErrorKind `json:"kind"`
	StatusCode int               `json:"status_code,omitempty"`
	Message    string            `json:"message"`
	Timestamp  time.Time         `json:"timestamp"`
	Cause      error             `json:"-"`
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("[upstream:%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// LogError logs the error with structured fields.
func (e *UpstreamError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_kind":       e.Kind,
		"error_message":    e.Message,
		"status_code":      e.StatusCode,
		"timestamp":        e.Timestamp,
		"underlying_error": e.Cause,
	}).Error("Upstream feed error")
}

// NewUpstreamUnreachable wraps a transport-level failure.
func NewUpstreamUnreachable(cause error) *UpstreamError {
	return &UpstreamError{
		Kind:      UpstreamUnreachable,
		Message:   "Unable to reach NVD right now.",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewUpstreamRejected wraps a non-success HTTP status from the feed.
func NewUpstreamRejected(statusCode int) *UpstreamError {
	return &UpstreamError{
		Kind:       UpstreamRejected,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("NVD returned %d. Try again shortly.", statusCode),
		Timestamp:  time.Now(),
	}
}

// NewUpstreamMalformed wraps a response body that failed to decode.
func NewUpstreamMalformed(cause error) *UpstreamError {
	return &UpstreamError{
		Kind:      UpstreamMalformed,
		Message:   "NVD response was not valid JSON.",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ValidationError reports a caller-supplied parameter that failed shape or
// range validation. Surfaced at the HTTP boundary as a 400.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[validation:%s] %s", e.Field, e.Message)
	}
	return fmt.Sprintf("[validation] %s", e.Message)
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
