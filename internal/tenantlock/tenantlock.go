// Package tenantlock provides a keyed, context-aware mutex used to linearize
// per-tenant operations (ledger appends, key creation and rotation) inside one
// process. Across processes the repositories serialize the same operations with
// unique constraints and, for rotation, a locking read of the active key row.
package tenantlock

import (
	"context"
	"fmt"
	"sync"
)

// entry is a one-slot channel acting as the mutex for one key. refs counts
// holders and waiters; the entry is dropped when it reaches zero.
type entry struct {
	ch   chan struct{}
	refs int
}

// Locker hands out one mutex per key. Idle keys are released so the map does
// not grow with the number of tenants ever seen.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until the lock for key is held or ctx is done. On success the
// returned func releases the lock and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquire(key)

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(key)
			})
		}, nil
	case <-ctx.Done():
		l.release(key)
		return nil, fmt.Errorf("waiting for tenant lock %q: %w", key, ctx.Err())
	}
}

// WithLock runs fn while holding the lock for key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// Len returns the number of keys currently held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// acquire registers interest in key and returns its entry.
func (l *Locker) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

// release drops interest in key, deleting the entry once nobody holds or
// waits on it.
func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
