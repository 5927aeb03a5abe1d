// Package common defines shared constants and sentinel errors used across
// the client layers of propsync. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Transport errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// Local persistence errors. Storage failures are logged and degraded to
	// cache misses by the storage adapter.
	ErrStorage       = errors.New("storage error")
	ErrValueTooLarge = errors.New("value exceeds secure store capacity")

	// Cache errors.
	ErrOfflineNoData = errors.New("offline and no cached data")

	// Response errors.
	ErrMalformedResponse = errors.New("malformed server response")

	// Token lifecycle errors.
	ErrInvalidToken      = errors.New("invalid token")
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrInvalidTransition = errors.New("invalid session state transition")

	// Offline queue errors.
	ErrDrainInProgress = errors.New("drain already in progress")
	ErrUnknownAction   = errors.New("unknown action type")
)
