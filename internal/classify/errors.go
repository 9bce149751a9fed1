package classify

import (
	"errors"
	"net/http"
)

// Error taxonomy for classification service calls. Every external-call
// boundary returns one of these wrapped sentinels so callers must handle
// failure explicitly; no error is ever swallowed into a nil result.
var (
	// ErrTransport indicates the service was unreachable or the connection failed.
	ErrTransport = errors.New("classification service unreachable")
	// ErrService indicates the service responded with an error payload.
	ErrService = errors.New("classification service error")
	// ErrMalformed indicates a response that could not be parsed into a known shape.
	ErrMalformed = errors.New("malformed classification response")
)

// MapHTTPStatus maps classification adapter errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrTransport) {
		return http.StatusBadGateway
	}
	if errors.Is(err, ErrService) || errors.Is(err, ErrMalformed) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
