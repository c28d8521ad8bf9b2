package concurrency

import "sync"

// KeyedLock serializes processing per key (patient id). Different keys are
// independent and may proceed concurrently.
type KeyedLock struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *KeyedLock) Lock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
}

func (m *KeyedLock) Unlock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if ok {
		lock.Unlock()
	}
	m.mu.Unlock()
}
