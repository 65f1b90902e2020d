// Package lock defines the distributed mutual-exclusion primitive that
// serializes concurrent bids on one auction across all service replicas.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock could not be obtained within the
// caller's wait budget. The caller's operation must be abandoned with no
// state mutated; it is safe to retry.
var ErrNotAcquired = errors.New("lock: not acquired")

// Handle represents a held lock. Release is safe to call after the hold
// timeout has expired the lock: it only removes the lock if this handle is
// still the holder, so a later acquirer is never released by a stale one.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker acquires per-key locks with a bounded wait and a bounded hold. The
// lock auto-expires after hold even if the holder never releases, so a
// crashed holder cannot deadlock the key.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, hold time.Duration) (Handle, error)
}
