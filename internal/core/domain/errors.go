package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation indicates an inbound message failed syntactic checks.
	// The message is deliberately generic: validation failures must never
	// carry diagnostic or clinical content back to the sender.
	ErrValidation = errors.New("message rejected")

	// ErrInvalidToken indicates a value does not match the opaque token
	// format. Anything resembling raw identity attributes is rejected.
	ErrInvalidToken = errors.New("invalid token format")

	// ErrAmbiguousIdentity indicates key derivation matched multiple
	// distinct existing mappings. Requires manual resolution; mappings
	// are never auto-merged.
	ErrAmbiguousIdentity = errors.New("ambiguous identity mapping")

	// ErrAccessDenied indicates a processing-side caller attempted a
	// hospital-side operation such as token resolution.
	ErrAccessDenied = errors.New("access denied")

	// ErrTokenInactive indicates the token's mapping was deactivated.
	// Resolution of a deactivated token never yields identity attributes.
	ErrTokenInactive = errors.New("token inactive")

	// ErrStoreUnavailable indicates a transient store failure. There is
	// no fallback that substitutes raw identity for a token.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAcyclicity indicates a write referenced an invalid or future
	// parent record. Rejected at write time, never partially applied.
	ErrAcyclicity = errors.New("acyclicity violation")

	// ErrRateLimited indicates a sender exceeded the inbound rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrQueueFull indicates the downstream envelope queue refused
	// delivery. Retried with bounded backoff before surfacing.
	ErrQueueFull = errors.New("queue full")

	// ErrEngineUnavailable indicates the analysis engine is not configured.
	ErrEngineUnavailable = errors.New("analysis engine unavailable")
)
