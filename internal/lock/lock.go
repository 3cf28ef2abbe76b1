// Package lock serializes allocation runs for one user and month, either
// inside the process or across instances through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"budgetwise/internal/core"
)

// ErrLocked is returned when the key is held by someone else and could not
// be obtained before the context or retry budget ran out.
var ErrLocked = errors.New("lock is held by another run")

// Unlock releases an obtained lock.
type Unlock func(ctx context.Context) error

type Locker interface {
	Obtain(ctx context.Context, key string) (Unlock, error)
}

// AllocationKey is the lock key for one user's month.
func AllocationKey(userID string, w core.MonthWindow) string {
	return fmt.Sprintf("allocation:%s:%s", userID, w.Key())
}

// LocalLocker holds one mutex per key. Waiters block until the holder
// releases or their context is done. A key's slot is dropped once nobody
// holds or waits on it.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*localSlot{}}
}

func (l *LocalLocker) acquire(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.locks[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.locks[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) release(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (Unlock, error) {
	s := l.acquire(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
		return nil
	}, nil
}

// held reports how many keys currently have a slot.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
