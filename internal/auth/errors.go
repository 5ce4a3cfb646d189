package auth

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrRevokedToken    = errors.New("token revoked")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("endpoint not found")
	ErrInternal        = errors.New("internal server error")
	ErrUnknownSubject  = errors.New("unknown subject")
)

// ValidationError reports input that fails the credential schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError reports a duplicate unique key.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return "user with email " + e.Key + " already exists"
}

// StatusCode maps an error of the taxonomy above to its HTTP status.
// Anything unrecognised is an internal error.
func StatusCode(err error) int {
	var validationErr *ValidationError
	var conflictErr *ConflictError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr), errors.As(err, &conflictErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrRevokedToken), errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
