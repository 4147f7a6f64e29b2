package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryHold struct {
	owner   string
	expires time.Time
}

// MemoryLocker is a process-local Locker with the same lease and
// owner-checked-release semantics as the distributed implementation. It is
// intended for tests and single-node development only.
type MemoryLocker struct {
	mu    sync.Mutex
	holds map[string]memoryHold
	now   func() time.Time
}

// NewMemoryLocker constructs an empty in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		holds: make(map[string]memoryHold),
		now:   time.Now,
	}
}

// Acquire polls for the lock until the wait window closes.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (Lease, error) {
	if lease <= 0 {
		lease = 8 * time.Second
	}
	deadline := l.now().Add(wait)
	owner := uuid.NewString()

	for {
		if l.tryHold(key, owner, lease) {
			return &memoryLease{locker: l, key: key, owner: owner}, nil
		}
		if l.now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (l *MemoryLocker) tryHold(key, owner string, lease time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if hold, ok := l.holds[key]; ok && now.Before(hold.expires) {
		return false
	}
	l.holds[key] = memoryHold{owner: owner, expires: now.Add(lease)}
	return true
}

func (l *MemoryLocker) release(key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[key]
	if !ok || hold.owner != owner {
		return ErrNotHeld
	}
	if l.now().After(hold.expires) {
		delete(l.holds, key)
		return ErrNotHeld
	}
	delete(l.holds, key)
	return nil
}

// WithNowFunc allows tests to override the time source.
func (l *MemoryLocker) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	owner  string
}

func (l *memoryLease) Release(context.Context) error {
	return l.locker.release(l.key, l.owner)
}

var _ Locker = (*MemoryLocker)(nil)
