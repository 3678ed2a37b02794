package domain

import "errors"

// Sentinel errors for the failure classes the service distinguishes.
// Callers branch with errors.Is; wrapping adds detail without losing the
// class.
var (
	// ErrValidation marks a malformed game or player record. Local to one
	// batch item, never aborts siblings.
	ErrValidation = errors.New("invalid game record")

	// ErrAuthentication marks a missing or unknown client credential.
	// Fatal for the whole request.
	ErrAuthentication = errors.New("authentication failed")

	// ErrClientMismatch marks a payload client_id that differs from the
	// authenticated identity.
	ErrClientMismatch = errors.New("client id does not match authenticated client")

	// ErrRateLimited marks a batch rejected by the upload gate before any
	// processing.
	ErrRateLimited = errors.New("upload rate limit exceeded")

	// ErrPersistence marks storage being unavailable or broken. Aborts the
	// remaining items of the unit of work.
	ErrPersistence = errors.New("storage unavailable")

	// ErrNotFound marks a resource with no data, distinguished from a
	// processing failure.
	ErrNotFound = errors.New("not found")
)
