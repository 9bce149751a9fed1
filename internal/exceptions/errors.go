package exceptions

import (
	"errors"
	"net/http"
)

// Domain errors for review queue operations.
var (
	ErrNotFound  = errors.New("classification result not found")
	ErrDuplicate = errors.New("classification result already exists")
)

// MapHTTPStatus maps review queue errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
