package utils

import "sync"

// KeyLock provides mutual exclusion per key. Locks of different keys do not
// block each other. The zero value is ready to use.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

type keyMutex struct {
	mu sync.Mutex
	// refs counts holders and waiters. The entry is removed when it drops
	// to zero.
	refs int
}

// Lock acquires the lock for given key and returns the function that
// releases it.
func (k *KeyLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &keyMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Unlock()
			k.mu.Lock()
			m.refs--
			if m.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// size returns the number of keys currently held or waited for.
func (k *KeyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
