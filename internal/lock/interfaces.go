// Package lock provides the locks that keep batch jobs from overlapping.
// A single node uses MemoryLocker. Several nodes share a RedisLocker.
package lock

import (
	"context"
	"time"
)

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another process.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	// Returns true if the lock was extended, false if it's not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock is a convenience wrapper for a specific lock instance.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
		held:   false,
	}
}

// Acquire attempts to acquire the lock.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key)
	l.held = false
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	if !extended {
		l.held = false
	}
	return nil
}

// IsHeld returns whether the lock is held.
func (l *Lock) IsHeld() bool {
	return l.held
}

// =============================================================================
// Job Lock Keys
// =============================================================================

// Keys provides lock key generation for batch jobs.
var Keys = lockKeys{}

type lockKeys struct{}

// DailyBackup returns the lock key for an organization's daily backup run.
func (lockKeys) DailyBackup(organizationID string) string {
	return "lock:backup:daily:" + organizationID
}

// MigrateAll returns the lock key for an organization's bulk migration.
func (lockKeys) MigrateAll(organizationID string) string {
	return "lock:migration:all:" + organizationID
}

// UsageAll returns the lock key for the all-organization usage refresh.
func (lockKeys) UsageAll() string {
	return "lock:usage:all"
}

// BillingAll returns the lock key for the all-organization billing run.
func (lockKeys) BillingAll() string {
	return "lock:billing:all"
}
