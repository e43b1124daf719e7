package locker

import (
	"context"
	"sync"
)

// SessionLocker hands out exclusive access scoped to a single table session.
// Every mutation that touches session-wide invariants (participant name
// uniqueness, ownership transfer, settlement completion) runs under the lock
// for that session ID; operations on different sessions never block each
// other.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[int64]*sessionLock
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// New creates a SessionLocker.
func New() *SessionLocker {
	return &SessionLocker{locks: make(map[int64]*sessionLock)}
}

// Acquire blocks until the session lock is held or the context is done.
// The returned release function is safe to call more than once.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID int64) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-entry.ch
				l.unref(sessionID, entry)
			})
		}
		return release, nil
	case <-ctx.Done():
		l.unref(sessionID, entry)
		return nil, ctx.Err()
	}
}

// unref drops one reference and frees the entry when nobody holds or waits
// for it anymore.
func (l *SessionLocker) unref(sessionID int64, entry *sessionLock) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, sessionID)
	}
	l.mu.Unlock()
}
