package errors

import (
	"errors"
)

// Common error types for the auth client
var (
	// Credential store errors
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// Storage errors
	ErrStoreClosed = errors.New("store closed")
	ErrEmptyKey    = errors.New("empty storage key")

	// ErrNotSupported marks a backend or gateway capability that is not
	// available.
	ErrNotSupported = errors.New("not supported")

	// Configuration errors
	ErrMissingGatewayURL = errors.New("gateway base URL is required")
)
