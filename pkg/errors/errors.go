package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so that clones compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrRateLimited  = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")

	// ErrValidation covers illegal transitions, out-of-range scores and missing preconditions.
	// Never retried.
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrIllegalTransition = New("ILLEGAL_TRANSITION", http.StatusBadRequest, "illegal status transition")
	ErrOutOfRange        = New("OUT_OF_RANGE", http.StatusBadRequest, "score out of range")
	ErrInvalidWeights    = New("INVALID_WEIGHTS", http.StatusBadRequest, "invalid component weights")

	// ErrConflict signals an optimistic-concurrency loss; callers re-read and retry.
	ErrConflict = New("CONFLICT", http.StatusConflict, "conflict")

	// ErrDependencyUnavailable wraps timeouts or failures of external collaborators.
	ErrDependencyUnavailable = New("DEPENDENCY_UNAVAILABLE", http.StatusServiceUnavailable, "dependency unavailable")

	// ErrInvariantViolation indicates storage or coordination corruption and requires an operator.
	ErrInvariantViolation = New("INVARIANT_VIOLATION", http.StatusInternalServerError, "invariant violation")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Clonef is Clone with a formatted message.
func Clonef(err *Error, format string, args ...interface{}) *Error {
	return Clone(err, fmt.Sprintf(format, args...))
}

// WrapAs wraps cause using the code and status of template.
func WrapAs(cause error, template *Error, message string) *Error {
	if message == "" {
		message = template.Message
	}
	return Wrap(cause, template.Code, template.Status, message)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsValidation reports validation-class failures.
func IsValidation(err error) bool {
	return HasCode(err, ErrValidation.Code) || HasCode(err, ErrIllegalTransition.Code) ||
		HasCode(err, ErrOutOfRange.Code) || HasCode(err, ErrInvalidWeights.Code)
}

// IsConflict reports optimistic-concurrency failures.
func IsConflict(err error) bool {
	return HasCode(err, ErrConflict.Code)
}

// IsDependencyUnavailable reports transient collaborator failures.
func IsDependencyUnavailable(err error) bool {
	return HasCode(err, ErrDependencyUnavailable.Code)
}

// IsNotFound reports missing resources.
func IsNotFound(err error) bool {
	return HasCode(err, ErrNotFound.Code)
}
