package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const defaultRetryDelay = 100 * time.Millisecond

// RedsyncLocker implements Locker on Redis via the Redlock algorithm. Each
// acquisition stores a random value so only the holder can release, and the
// key expires after the lease even if the holder disappears.
type RedsyncLocker struct {
	rs         *redsync.Redsync
	retryDelay time.Duration
}

// NewRedsyncLocker wraps an existing Redis client.
func NewRedsyncLocker(cli *redis.Client) *RedsyncLocker {
	return &RedsyncLocker{
		rs:         redsync.New(goredis.NewPool(cli)),
		retryDelay: defaultRetryDelay,
	}
}

// Acquire retries within the wait window and converts exhaustion into
// ErrNotAcquired.
func (l *RedsyncLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (Lease, error) {
	if wait <= 0 {
		wait = l.retryDelay
	}
	if lease <= 0 {
		lease = 8 * time.Second
	}

	tries := int(wait/l.retryDelay) + 1
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(lease),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(l.retryDelay),
	)

	acquireCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := mutex.LockContext(acquireCtx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}

	return &redsyncLease{mutex: mutex}, nil
}

type redsyncLease struct {
	mutex *redsync.Mutex
}

func (l *redsyncLease) Release(ctx context.Context) error {
	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotHeld, err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

var _ Locker = (*RedsyncLocker)(nil)
