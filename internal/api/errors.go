package api

import (
	"errors"
	"net/http"

	"github.com/signalsfoundry/gridsim/internal/external"
)

var (
	// ErrNotFound is used when an addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is used for malformed request parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoSnapshot is returned before the first tick has run.
	ErrNoSnapshot = errors.New("no snapshot available yet")
)

// statusFor maps handler errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoSnapshot),
		errors.Is(err, external.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
