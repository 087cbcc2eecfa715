package service

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the services. Callers wrap these with detail via
// fmt.Errorf("%w: ...") and the API layer maps them to status codes.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream service failed")
	ErrConflict     = errors.New("content was modified concurrently, retry the request")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
