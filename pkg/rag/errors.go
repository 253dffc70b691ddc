package rag

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType categorizes retrieval failures so callers can map them to a
// degraded user-facing response without string matching.
type ErrorType string

const (
	// ErrTypeConnection indicates client construction or health failure
	// against a downstream service.
	ErrTypeConnection ErrorType = "connection"

	// ErrTypeTimeout indicates the retrieval deadline was exceeded.
	ErrTypeTimeout ErrorType = "timeout"

	// ErrTypeUpstream indicates the vector, embedding or rerank service
	// returned a non-retryable error.
	ErrTypeUpstream ErrorType = "upstream"

	// ErrTypeCacheUnavailable indicates the cache store is unreachable.
	// Always absorbed locally, never surfaced to callers.
	ErrTypeCacheUnavailable ErrorType = "cache_unavailable"

	// ErrTypeValidation indicates a malformed request.
	ErrTypeValidation ErrorType = "validation"
)

// ServiceError is the typed error surfaced at the retrieval API boundary.
type ServiceError struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches ServiceErrors by type so errors.Is works with sentinels.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return e.Type == se.Type
	}
	return false
}

func newConnectionError(op, message string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeConnection, Op: op, Message: message, Cause: cause}
}

func newTimeoutError(op, message string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeTimeout, Op: op, Message: message, Cause: cause}
}

func newUpstreamError(op, message string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeUpstream, Op: op, Message: message, Cause: cause}
}

func newCacheUnavailableError(op string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeCacheUnavailable, Op: op, Message: "cache store unavailable", Cause: cause}
}

func newValidationError(op, message string) *ServiceError {
	return &ServiceError{Type: ErrTypeValidation, Op: op, Message: message}
}

// ErrorTypeOf extracts the ErrorType from err, or empty if err is not a
// ServiceError.
func ErrorTypeOf(err error) ErrorType {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsTimeout reports whether err is a deadline expiry, either our own typed
// timeout or a raw context deadline from a downstream SDK.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ErrorTypeOf(err) == ErrTypeTimeout
}
