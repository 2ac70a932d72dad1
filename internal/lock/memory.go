package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCleanupInterval is how often MemoryLocker drops expired entries.
const DefaultCleanupInterval = 30 * time.Second

// MemoryLocker implements Locker with a process-local map.
// Locks are not shared across instances and do not survive a restart.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type lockEntry struct {
	expiresAt time.Time
	token     string
}

// NewMemoryLocker creates an in-memory locker and starts its cleanup loop.
// Call Close to stop the loop.
func NewMemoryLocker() *MemoryLocker {
	return newMemoryLocker(time.Now, DefaultCleanupInterval)
}

func newMemoryLocker(now func() time.Time, cleanupEvery time.Duration) *MemoryLocker {
	ml := &MemoryLocker{
		locks: make(map[string]lockEntry),
		now:   now,
		stop:  make(chan struct{}),
	}
	go ml.cleanupLoop(cleanupEvery)
	return ml
}

// Close stops the cleanup loop. Held locks stay valid until they expire.
func (m *MemoryLocker) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryLocker) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.locks {
		if !now.Before(entry.expiresAt) {
			delete(m.locks, key)
		}
	}
}

// live returns the entry for key if it has not expired. Caller holds mu.
func (m *MemoryLocker) live(key string) (lockEntry, bool) {
	entry, ok := m.locks[key]
	if !ok {
		return lockEntry{}, false
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.locks, key)
		return lockEntry{}, false
	}
	return entry, true
}

// Acquire takes key for ttl unless a live holder exists.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.live(key); held {
		return false, nil
	}
	m.locks[key] = lockEntry{
		expiresAt: m.now().Add(ttl),
		token:     uuid.NewString(),
	}
	return true, nil
}

// Release drops key. It reports false when nothing live was held.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.live(key); !held {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Extend resets the TTL of a live lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, held := m.live(key)
	if !held {
		return false, nil
	}
	entry.expiresAt = m.now().Add(ttl)
	m.locks[key] = entry
	return true, nil
}

// IsHeld reports whether key has a live holder.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, held := m.live(key)
	return held, nil
}

var _ Locker = (*MemoryLocker)(nil)
