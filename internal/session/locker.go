package session

import "sync"

// Locker hands out one mutex per identity so that turns from the same user run
// one at a time while different users proceed in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until identity's lock is held and returns the function that releases it.
func (l *Locker) Lock(identity string) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.locks[identity]
	if !ok {
		kl = &keyLock{}
		l.locks[identity] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.mu.Unlock()
			l.mu.Lock()
			kl.refs--
			if kl.refs == 0 {
				delete(l.locks, identity)
			}
			l.mu.Unlock()
		})
	}
}

// Held returns the number of identities with a holder or waiter.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
