package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired indicates the lock was still held by someone else when
	// the wait window closed.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld indicates a release by a caller that no longer holds the
	// lock, either because it already released or the lease expired.
	ErrNotHeld = errors.New("lock not held")
)

// Lease is a held lock. The lease expires on its own after the duration given
// at acquisition, so a crashed holder cannot block others indefinitely.
type Lease interface {
	// Release frees the lock if, and only if, the caller still holds it.
	Release(ctx context.Context) error
}

// Locker provides cross-process mutual exclusion keyed by a string.
type Locker interface {
	// Acquire blocks for at most wait trying to take the lock, returning
	// ErrNotAcquired once the window closes. On success the lock is held for
	// at most lease.
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (Lease, error)
}
