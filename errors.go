package ghtree

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"
)

// Error codes used throughout the module (aliases of the errors library
// codes for readability in this context).
const (
	// ErrCodeNotFound indicates a repository or ref does not exist.
	ErrCodeNotFound = errors.CodeNotFound

	// ErrCodeRateLimited indicates the host's rate limit is exhausted.
	ErrCodeRateLimited = errors.CodeRateLimit

	// ErrCodeConflict indicates inconsistent tree data from the host.
	ErrCodeConflict = errors.CodeConflict

	// ErrCodeInvalidInput indicates invalid parameters or malformed data.
	ErrCodeInvalidInput = errors.CodeInvalidInput

	// ErrCodeNetwork indicates network-related errors.
	ErrCodeNetwork = errors.CodeNetwork

	// ErrCodeTimeout indicates an individual call exceeded its deadline.
	ErrCodeTimeout = errors.CodeTimeout

	// ErrCodeUnavailable indicates the host is temporarily unavailable.
	ErrCodeUnavailable = errors.CodeUnavailable

	// ErrCodeAuthenticationFailed indicates authentication failure.
	ErrCodeAuthenticationFailed = errors.CodeUnauthorized

	// ErrCodePermissionDenied indicates insufficient permissions.
	ErrCodePermissionDenied = errors.CodeForbidden

	// ErrCodeInternal indicates internal errors.
	ErrCodeInternal = errors.CodeInternal
)

// retryAtContextKey is the context field carrying the earliest useful
// retry time on rate-limit errors.
const retryAtContextKey = "retry_at"

// WrapHTTPError wraps an error based on the HTTP status code reported by
// the host API.
func WrapHTTPError(err error, statusCode int, message string) error {
	if err == nil {
		return nil
	}

	var code errors.ErrorCode
	switch statusCode {
	case http.StatusNotFound:
		code = errors.CodeNotFound
	case http.StatusUnauthorized:
		code = errors.CodeUnauthorized
	case http.StatusForbidden:
		code = errors.CodeForbidden
	case http.StatusConflict:
		code = errors.CodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = errors.CodeInvalidInput
	case http.StatusTooManyRequests:
		code = errors.CodeRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = errors.CodeUnavailable
	default:
		if statusCode >= 500 {
			code = errors.CodeUnavailable
		} else {
			code = errors.CodeInternal
		}
	}

	return errors.Wrap(err, code, message)
}

// NewRateLimitError creates a rate-limit error carrying the reset time
// reported by the host. The reset time is recoverable via RetryAt.
func NewRateLimitError(cause error, resetAt time.Time) error {
	var err error
	if cause != nil {
		err = errors.Wrap(cause, errors.CodeRateLimit, "rate limit exhausted")
	} else {
		err = errors.New(errors.CodeRateLimit, "rate limit exhausted")
	}
	return errors.WithContext(err, retryAtContextKey, resetAt)
}

// RetryAt extracts the earliest useful retry time from a rate-limit
// error. Returns false if the error carries no reset time.
func RetryAt(err error) (time.Time, bool) {
	var platformErr errors.PlatformError
	if !errors.As(err, &platformErr) {
		return time.Time{}, false
	}
	v, ok := platformErr.Context()[retryAtContextKey]
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// IsNotFound reports whether the error indicates a missing repository or ref.
func IsNotFound(err error) bool {
	return errors.GetCode(err) == errors.CodeNotFound
}

// IsRateLimited reports whether the error indicates rate-limit exhaustion.
func IsRateLimited(err error) bool {
	return errors.GetCode(err) == errors.CodeRateLimit
}

// wrapContextErr classifies a context failure on an abandoned call.
// Deadline expiry is a timeout; caller cancellation is not and must not
// be reported as one.
func wrapContextErr(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, ErrCodeTimeout, operation+" deadline exceeded")
	}
	return errors.Wrap(err, ErrCodeInternal, operation+" canceled by caller")
}

// isTransient reports whether a fetch failure may be absorbed by serving
// the last-known-good snapshot. Not-found and data-integrity failures
// are never transient.
func isTransient(err error) bool {
	switch errors.GetCode(err) {
	case errors.CodeNetwork, errors.CodeTimeout, errors.CodeUnavailable:
		return true
	default:
		return false
	}
}

// newConflictError creates a data-integrity error for a tree path whose
// kind conflicts with an already-established node.
func newConflictError(path, reason string) error {
	err := errors.New(
		errors.CodeConflict,
		fmt.Sprintf("conflicting tree entry at %q: %s", path, reason),
	)
	return errors.WithContext(err, "path", path)
}

// ConflictPath extracts the offending path from a conflict error.
// Returns false if the error is not a conflict error.
func ConflictPath(err error) (string, bool) {
	if errors.GetCode(err) != errors.CodeConflict {
		return "", false
	}
	var platformErr errors.PlatformError
	if !errors.As(err, &platformErr) {
		return "", false
	}
	path, ok := platformErr.Context()["path"].(string)
	return path, ok
}

// newInvalidInputError creates an invalid input error with context.
func newInvalidInputError(field, reason string) error {
	err := errors.New(
		errors.CodeInvalidInput,
		fmt.Sprintf("invalid %s: %s", field, reason),
	)
	err = errors.WithContext(err, "field", field)
	return errors.WithContext(err, "reason", reason)
}

// newNotFoundError creates a not found error with context.
func newNotFoundError(resourceType, identifier string) error {
	err := errors.New(
		errors.CodeNotFound,
		fmt.Sprintf("%s not found: %s", resourceType, identifier),
	)
	err = errors.WithContext(err, "resource_type", resourceType)
	return errors.WithContext(err, "identifier", identifier)
}
