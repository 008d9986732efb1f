// Package apperr defines the error kinds shared by every layer and their
// mapping onto transport status codes.
package apperr

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNoSession means the user has no stored provider credentials.
	ErrNoSession = errors.New("no provider session")
)

// NotFound reports a missing resource, e.g. NotFound("room").
func NotFound(resource string) error {
	return errors.Mark(errors.Newf("%s not found", resource), ErrNotFound)
}

func Conflict(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

func Forbidden(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrForbidden)
}

func InvalidArgument(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// Upstream wraps a provider failure.
func Upstream(err error, provider string) error {
	return errors.Mark(errors.Wrapf(err, "%s unavailable", provider), ErrUpstreamUnavailable)
}

// HTTPStatus maps an error onto the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the short text shown to users. Internal errors are not
// exposed verbatim.
func Message(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
