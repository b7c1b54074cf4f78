package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/google/uuid"
)

// lease is a held lock with its expiration
type lease struct {
	token     string
	expiresAt time.Time
}

// InMemoryRunLock implements RunLock using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemoryRunLock struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewInMemoryRunLock creates a new in-memory run lock
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// TryAcquire takes key for ttl unless an unexpired lease holds it
func (l *InMemoryRunLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release frees key when token still owns it; a stale token is ignored
func (l *InMemoryRunLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases[key]; ok && held.token == token {
		delete(l.leases, key)
	}
	return nil
}

// Close is a no-op
func (l *InMemoryRunLock) Close() error {
	return nil
}

// Ensure InMemoryRunLock implements RunLock
var _ shared.RunLock = (*InMemoryRunLock)(nil)
