package errors

import (
	"errors"
	"fmt"
)

// Common error types for the blog API client
var (
	// Credential errors
	ErrNoCredentials      = errors.New("no stored credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCorruptSession     = errors.New("session file is corrupt or the passphrase is wrong")

	// Token errors
	ErrMalformedToken   = errors.New("malformed token")
	ErrMalformedRefresh = errors.New("refresh response did not contain a token pair")
	ErrMalformedLogin   = errors.New("login response did not contain a token pair")

	// Refresh coordination errors
	ErrRefreshTimeout     = errors.New("token refresh timed out")
	ErrQueueTimeout       = errors.New("timed out waiting for token refresh")
	ErrSessionInvalidated = errors.New("session invalidated")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
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
