package sessions

import (
	"errors"
	"net/http"
)

// Domain errors for session operations.
var (
	ErrNotFound           = errors.New("session not found")
	ErrEmptyQuery         = errors.New("product description required")
	ErrMissingUser        = errors.New("user id required")
	ErrEmptyAnswer        = errors.New("clarification answer required")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrInvalidState       = errors.New("operation not valid in current state")
)

// MapHTTPStatus maps session domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyQuery),
		errors.Is(err, ErrMissingUser),
		errors.Is(err, ErrEmptyAnswer):
		return http.StatusBadRequest
	case errors.Is(err, ErrSubmissionInFlight),
		errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
