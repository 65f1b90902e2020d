// Package store defines the ephemeral key-value store holding live bid state
// while an auction is open. Operations are atomic per key only; callers that
// need read-modify-write across keys must hold the per-auction lock.
package store

import "context"

// Store is the ephemeral state store contract. Values have no implicit
// expiry: settlement and auction re-creation clean entries up explicitly.
// Implementation errors are infrastructure faults, never business outcomes.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// AddToSet adds member to the set at key. Idempotent.
	AddToSet(ctx context.Context, key, member string) error
	// SetSize returns the cardinality of the set at key; 0 if absent.
	SetSize(ctx context.Context, key string) (int64, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
