// Package errors provides the standardized error taxonomy for the report bot.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Understanding-service failures: the NLU endpoint was unreachable or
	// returned output that failed schema validation. Recovered by asking
	// the user to rephrase.
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"

	// A submitted filter field failed its closed-set or date-grammar check.
	// Treated as "field still missing", never a hard error.
	ErrCodeValidationRejected ErrorCode = "VALIDATION_REJECTED"

	// Session inactivity timeout. The session is dropped silently.
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"

	// Network/timeout class store failures. Retried with backoff.
	ErrCodeStoreTransient ErrorCode = "STORE_TRANSIENT"

	// Malformed query or authorization failure. Never retried.
	ErrCodeStoreFatal ErrorCode = "STORE_FATAL"

	// A connection was requested but none could be obtained. Retried like
	// a transient store failure.
	ErrCodePoolExhausted ErrorCode = "POOL_EXHAUSTED"

	ErrCodeReportFailed ErrorCode = "REPORT_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewExtractionError creates a non-retryable understanding-service error.
// The conversation recovers by prompting the user again, not by retrying
// the same call.
func NewExtractionError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Understanding service returned no usable fields",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationRejectedError creates a non-retryable field rejection.
func NewValidationRejectedError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationRejected,
		Message:   fmt.Sprintf("Field %q failed validation", field),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionExpiredError creates a non-retryable session expiry marker.
func NewSessionExpiredError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionExpired,
		Message:   "Session exceeded inactivity timeout",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransientStoreError creates a retryable store error.
func NewTransientStoreError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreTransient,
		Message:   "Transient data store failure",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewFatalStoreError creates a non-retryable store error.
func NewFatalStoreError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFatal,
		Message:   "Fatal data store failure",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPoolExhaustedError creates a retryable connection acquisition error.
func NewPoolExhaustedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePoolExhausted,
		Message:   "No data store connection obtainable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewReportFailedError creates a non-retryable report generation error.
func NewReportFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReportFailed,
		Message:   "Report file generation failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsTransient reports whether err carries a retryable StandardError.
// Unknown errors are treated as non-retryable.
func IsTransient(err error) bool {
	var std *StandardError
	if errors.As(err, &std) {
		return std.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or "" for unclassified errors.
func CodeOf(err error) ErrorCode {
	var std *StandardError
	if errors.As(err, &std) {
		return std.Code
	}
	return ""
}
