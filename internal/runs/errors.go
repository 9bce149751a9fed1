package runs

import (
	"errors"
	"net/http"
)

// Domain errors for bulk run operations.
var (
	ErrNotFound     = errors.New("run not found")
	ErrDuplicate    = errors.New("run already exists")
	ErrMissingUser  = errors.New("user id required")
	ErrEmptyFile    = errors.New("uploaded file is empty")
	ErrNotTerminal  = errors.New("run has not reached a terminal status")
	ErrNotLive      = errors.New("run is not active in this process")
	ErrNoSourceFile = errors.New("run has no archived source file")
)

// MapHTTPStatus maps run domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoSourceFile):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingUser), errors.Is(err, ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotTerminal), errors.Is(err, ErrNotLive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
