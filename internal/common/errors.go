// Package common defines shared sentinel errors and tagged error types used
// across the upload pipeline. Callers should use errors.Is / errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Auth errors. ErrorUnauthorized means the presented credential is
	// missing or wrong; ErrorNoSecretConfigured means the server itself has
	// no secret set and cannot authorize anything.
	ErrorUnauthorized       = errors.New("unauthorized")
	ErrorNoSecretConfigured = errors.New("api secret is not configured")

	// ErrorUnsupportedContentType marks validation failures that the HTTP
	// edge reports as 415 rather than a generic 400.
	ErrorUnsupportedContentType = errors.New("unsupported content type")
)

// ValidationError reports malformed or out-of-range client input. It is
// always raised before any call to the object store. Err, when set, carries
// a sentinel the edge can branch on with errors.Is.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a failure returned by the object store (or the
// network path to it). Code carries the store's own error code when one was
// available, e.g. "NoSuchUpload".
type UpstreamError struct {
	Code    string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("object store: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("object store: %s", e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
