package settings

import (
	"errors"
	"net/http"
)

// Domain errors for reviewer configuration operations.
var (
	ErrNotFound         = errors.New("reviewer configuration not found")
	ErrDuplicate        = errors.New("reviewer configuration already exists")
	ErrInvalidThreshold = errors.New("confidence threshold must be between 0 and 100")
	ErrMissingUser      = errors.New("user id required")
)

// MapHTTPStatus maps settings domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidThreshold) || errors.Is(err, ErrMissingUser) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
