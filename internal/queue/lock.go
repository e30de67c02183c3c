package queue

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Locker serializes critical sections per key. The returned unlock must be
// called exactly once; calling it again is a no-op.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedLocker is an in-process Locker. Keys do not contend with each other
// and idle keys are dropped.
type KeyedLocker struct {
	locks *xsync.MapOf[string, *keyedLock]
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: xsync.NewMapOf[string, *keyedLock]()}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	kl, _ := l.locks.Compute(key, func(old *keyedLock, loaded bool) (*keyedLock, bool) {
		if !loaded {
			old = &keyedLock{sem: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})

	select {
	case kl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.sem
				l.release(key)
			})
		}, nil
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) release(key string) {
	l.locks.Compute(key, func(old *keyedLock, loaded bool) (*keyedLock, bool) {
		if !loaded {
			return nil, true
		}
		old.refs--
		return old, old.refs <= 0
	})
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLocker) Len() int {
	return l.locks.Size()
}

func numberLockKey(queueID string) string { return "queue:" + queueID + ":number" }
func callLockKey(queueID string) string   { return "queue:" + queueID + ":call" }
