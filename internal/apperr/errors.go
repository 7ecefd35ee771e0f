// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated is returned when a request carries no usable credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredential is returned when a bearer key does not resolve to a user.
	ErrInvalidCredential = errors.New("invalid credential")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	// ErrExpired is returned for short links whose expiry has passed.
	ErrExpired = errors.New("expired")
	// ErrStoreUnavailable is returned when the object store fails its reachability probe.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreWriteFailed is returned when the object store rejects a write.
	ErrStoreWriteFailed = errors.New("store write failed")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrTooLarge         = errors.New("payload too large")
	ErrRateLimited      = errors.New("rate limited")
)

var statusByErr = []struct {
	err    error
	status int
}{
	{ErrUnauthenticated, http.StatusUnauthorized},
	{ErrInvalidCredential, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrNotFound, http.StatusNotFound},
	{ErrExpired, http.StatusGone},
	{ErrStoreUnavailable, http.StatusServiceUnavailable},
	{ErrStoreWriteFailed, http.StatusBadGateway},
	{ErrValidation, http.StatusBadRequest},
	{ErrConflict, http.StatusConflict},
	{ErrTooLarge, http.StatusRequestEntityTooLarge},
	{ErrRateLimited, http.StatusTooManyRequests},
}

// Status maps err to an HTTP status code. Unknown errors map to 500.
func Status(err error) int {
	for _, s := range statusByErr {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing message for err. Internal errors are not
// exposed verbatim.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
