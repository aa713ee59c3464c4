package staylink_errors

import "errors"

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyExists      = errors.New("already exists")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
)

// Code maps an error to the short code carried on error responses and
// typed gateway error events.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return "CONFLICT"
	case errors.Is(err, ErrServiceUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
