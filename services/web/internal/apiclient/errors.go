package apiclient

import (
	"errors"
	"net/http"
)

// Operation kinds. Every failed call unwraps to exactly one of these.
var (
	ErrLogin        = errors.New("failed to login")
	ErrRegister     = errors.New("failed to register")
	ErrFetchBooks   = errors.New("failed to load books")
	ErrFetchReviews = errors.New("failed to load reviews")
	ErrSubmitReview = errors.New("failed to submit review")
	ErrAddBook      = errors.New("failed to add book")
	ErrDeleteBook   = errors.New("failed to delete book")
	ErrListReviews  = errors.New("failed to load reviews")
	ErrDeleteReview = errors.New("failed to delete review")
)

// Error is returned by every Client method. Callers only see the operation
// message; Status and Cause are kept for logs.
type Error struct {
	Op     string
	Kind   error
	Status int
	Cause  error
}

func (e *Error) Error() string {
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Transport reports whether no response was received.
func (e *Error) Transport() bool {
	return e.Status == 0
}

// LogAttrs returns slog key/value pairs describing the underlying cause.
func (e *Error) LogAttrs() []any {
	attrs := []any{"op", e.Op, "status", e.Status}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}
	return attrs
}

func statusFailed(code int) bool {
	return code < http.StatusOK || code >= http.StatusMultipleChoices
}
