package errors

import (
	"errors"
	"fmt"
)

// Common error types for the OAuth2 provider
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Client errors
	ErrClientNotFound     = errors.New("client not found")
	ErrInvalidClient      = errors.New("invalid client")
	ErrInvalidScope       = errors.New("invalid scope")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")

	// Authorization errors
	ErrGrantNotFound       = errors.New("grant not found")
	ErrGrantExpired        = errors.New("grant expired")
	ErrGrantAlreadyUsed    = errors.New("grant already used")
	ErrGrantClientMismatch = errors.New("grant issued to another client")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

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
