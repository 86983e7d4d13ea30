// Package errors defines the application error taxonomy shared by the auth
// manager, the Cognito bridge, and the HTTP layer. Every bridge failure is
// classified into one of these sentinels before it reaches the manager, which
// only ever branches on the credential-failure vs upstream-unavailable split.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Caller input errors
	ErrMissingCredentials = errors.New("email and password are required")

	// Session errors
	ErrUnauthenticated = errors.New("authentication required, sign in with your ChessDojo email and password")
	ErrSessionExpired  = errors.New("session expired, please sign in again")

	// Identity provider errors
	ErrLoginRejected       = errors.New("identity provider rejected the credentials")
	ErrUpstreamBadRequest  = errors.New("identity provider rejected the request")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrLoginPageChanged    = errors.New("hosted login page no longer matches the expected format")

	// Preferences errors
	ErrVersionConflict = errors.New("preferences update conflict, reload latest preferences and retry")

	// General errors
	ErrNotFound = errors.New("not found")
)

// IsCredentialFailure reports whether err is a 400/401/403-classified provider
// failure. Only these failures may tear down stored credentials; everything
// else is treated as transient and must leave state untouched.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrLoginRejected) || errors.Is(err, ErrUpstreamBadRequest)
}

// HTTPStatus maps a taxonomy error to the status code the HTTP layer responds with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrLoginRejected):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstreamBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrLoginPageChanged):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
