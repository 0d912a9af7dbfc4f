package sessionmgr

import (
	"context"
	"sync"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/backoff"
	"github.com/google/uuid"
)

// BoundaryLocker serializes the boundary check for a (phone, clinic) pair
// across processes. Acquire returns a release token; the caller must defer
// Release(ctx, key, token) to avoid leaking a lease.
//
// The production backend is a KV store (Redis-shaped) implementing release
// as a compare-and-delete so a lock can never be released by a holder whose
// lease already expired and was reacquired by someone else. MemoryLocker
// below gives the same compare-and-delete semantics for a single process.
type BoundaryLocker interface {
	Acquire(ctx context.Context, key string) (token string, err error)
	Release(ctx context.Context, key, token string)
}

// LockConfig controls acquire retry behavior.
type LockConfig struct {
	TTL            time.Duration
	AcquireTimeout time.Duration
	Backoff        backoff.BackoffPolicy
}

// DefaultLockConfig mirrors BOUNDARY_LOCK_TTL_MS / a ~5s lease with a short
// jittered retry budget, matching the acquire-loop shape of the DB-backed
// session lease lock this package generalizes.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:            5 * time.Second,
		AcquireTimeout: 2 * time.Second,
		Backoff:        backoff.AggressivePolicy(),
	}
}

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is an in-process BoundaryLocker with compare-and-delete
// release semantics, used for tests and single-node deployments.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	cfg    LockConfig
	clock  func() time.Time
}

// NewMemoryLocker creates a MemoryLocker with the given config.
func NewMemoryLocker(cfg LockConfig) *MemoryLocker {
	if cfg.TTL <= 0 || cfg.AcquireTimeout <= 0 {
		cfg = DefaultLockConfig()
	}
	return &MemoryLocker{
		leases: make(map[string]lease),
		cfg:    cfg,
		clock:  time.Now,
	}
}

// Acquire polls for the lock with jittered backoff until AcquireTimeout
// elapses, matching the poll-then-sleep shape of the teacher's DBLocker.Lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string) (string, error) {
	deadline := m.clock().Add(m.cfg.AcquireTimeout)
	attempt := 0
	for {
		attempt++
		token, ok := m.tryAcquire(key)
		if ok {
			return token, nil
		}
		if m.clock().After(deadline) {
			return "", ErrLockTimeout
		}
		wait := backoff.ComputeBackoff(m.cfg.Backoff, attempt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *MemoryLocker) tryAcquire(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	if l, ok := m.leases[key]; ok && now.Before(l.expiresAt) {
		return "", false
	}
	token := uuid.NewString()
	m.leases[key] = lease{token: token, expiresAt: now.Add(m.cfg.TTL)}
	return token, true
}

// Release deletes the lease only if token still matches the current holder
// (compare-and-delete); a stale caller releasing after its lease expired and
// was reacquired by someone else is a no-op.
func (m *MemoryLocker) Release(ctx context.Context, key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leases[key]; ok && l.token == token {
		delete(m.leases, key)
	}
}
