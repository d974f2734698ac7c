package portalfile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Standard errors returned by the SDK.
var (
	// ErrValidation indicates invalid input parameters.
	ErrValidation = errors.New("validation error")
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")
	// ErrSessionExpired indicates the upload session lapsed on the server.
	ErrSessionExpired = errors.New("upload session expired")
	// ErrFileTooLarge indicates the file exceeds server limits.
	ErrFileTooLarge = errors.New("file too large")
)

// APIError represents an error response from the PortalFile API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Code is the machine-readable error code from the response body.
	Code string
	// Message is the human-readable error message.
	Message string
	// Err is the matching sentinel error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Unwrap returns the matching sentinel for errors.Is support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same request can succeed.
// Server-side failures and payload-too-large responses are transient;
// any other 4xx is a protocol error that will fail identically on retry.
func (e *APIError) Retryable() bool {
	if e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == http.StatusRequestEntityTooLarge
}

// newAPIError maps a status code and body to an APIError with a sentinel.
func newAPIError(statusCode int, code, message string) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Code: code, Message: message}
	switch statusCode {
	case http.StatusNotFound:
		apiErr.Err = ErrNotFound
	case http.StatusGone:
		apiErr.Err = ErrSessionExpired
	case http.StatusRequestEntityTooLarge:
		apiErr.Err = ErrFileTooLarge
	case http.StatusBadRequest:
		apiErr.Err = ErrValidation
	}
	return apiErr
}

// ChunkError reports the terminal failure of one chunk after its retry
// budget was spent.
type ChunkError struct {
	// Index is the zero-based chunk index.
	Index int
	// Attempts is how many times the chunk was tried.
	Attempts int
	// Elapsed is the total time spent on this chunk including backoff.
	Elapsed time.Duration
	// Err is the last attempt's error.
	Err error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts in %s: %v",
		e.Index, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the underlying failure was transient.
func (e *ChunkError) Retryable() bool {
	return isRetryable(e.Err)
}

// UploadError aggregates everything that went wrong in one upload attempt.
type UploadError struct {
	// UploadID is the session id, empty if init never succeeded.
	UploadID string
	// ChunkErrors holds each chunk's terminal failure.
	ChunkErrors []*ChunkError
	// Err is a non-chunk failure (init, complete, cancellation).
	Err error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	var sb strings.Builder
	sb.WriteString("upload failed")
	if e.UploadID != "" {
		sb.WriteString(" (session " + e.UploadID + ")")
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	for _, ce := range e.ChunkErrors {
		sb.WriteString("; " + ce.Error())
	}
	return sb.String()
}

// Unwrap returns the non-chunk failure if present, else the first chunk error.
func (e *UploadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if len(e.ChunkErrors) > 0 {
		return e.ChunkErrors[0]
	}
	return nil
}

// Retryable reports whether the whole upload is worth retrying: true only
// when every recorded failure was transient.
func (e *UploadError) Retryable() bool {
	if e.Err != nil && !isRetryable(e.Err) {
		return false
	}
	for _, ce := range e.ChunkErrors {
		if !ce.Retryable() {
			return false
		}
	}
	return e.Err != nil || len(e.ChunkErrors) > 0
}

// ValidationError represents an input validation failure.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string
	// Message describes what's wrong.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Is implements error comparison.
func (e *ValidationError) Is(target error) bool {
	return errors.Is(ErrValidation, target)
}

// isRetryable classifies an arbitrary transfer error. API errors answer for
// themselves; everything else (network failures, timeouts) is transient
// unless the context was cancelled.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
