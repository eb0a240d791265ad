package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the service layer. Handlers map them to HTTP statuses
// with StatusCode; services wrap them with context via fmt.Errorf("%w").
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream failure")
)

// Wrap attaches a message to a sentinel so callers can still match with errors.Is.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// StatusCode maps a service error to an HTTP status code.
// Unrecognized errors are treated as internal.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
