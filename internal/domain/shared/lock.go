package shared

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("shared: lock is held by another run")

// RunLock serializes jobs that must not overlap, across instances when the
// implementation is shared
type RunLock interface {
	// TryAcquire takes the lock for ttl. It returns a token identifying this
	// holder, or ok=false when the lock is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees the lock if token still owns it
	Release(ctx context.Context, key, token string) error

	Close() error
}
