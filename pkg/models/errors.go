package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the credential and submission subsystems. Callers
// match these with errors.Is; no user-facing presentation happens here.
var (
	// ErrNotAuthenticated means no usable credential exists and none can be
	// derived. The caller must run the device-authorization flow.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrCredentialRejected means the remote returned 401/403 for a
	// credential that has now been purged from the store.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrDeviceCodeExpired means the device code lapsed before the user
	// authorized it.
	ErrDeviceCodeExpired = errors.New("device code expired")

	// ErrRateLimited means the remote returned 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrHostUnavailable means a 5xx response or a transport failure on a
	// non-retried call.
	ErrHostUnavailable = errors.New("host unavailable")

	// ErrExchangeFailed means a credential exchange returned any other
	// non-success response.
	ErrExchangeFailed = errors.New("credential exchange failed")
)

// AuthorizationDeniedError is returned when the token poll terminates with
// an error code other than the retryable ones, e.g. access_denied.
type AuthorizationDeniedError struct {
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}
