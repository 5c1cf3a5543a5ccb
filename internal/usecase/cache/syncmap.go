package cache

import (
	"sync"

	candlev1 "github.com/KingCyberX/insiderdept-sub000/internal/domain/candle/v1"
)

// syncMap guards the per-key entries. Callbacks run inside the lock, so
// they must stay cheap: map and series mutation only, no I/O.
type syncMap struct {
	mu      *sync.RWMutex
	entries map[candlev1.Key]*entry
}

func newSyncMap() syncMap {
	return syncMap{
		mu:      &sync.RWMutex{},
		entries: make(map[candlev1.Key]*entry),
	}
}

// read runs fn under the read lock when the key exists.
func (m syncMap) read(key candlev1.Key, fn func(*entry)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// update runs fn under the write lock when the key exists. A missing key
// means the series was cleaned up while an operation was in flight; the
// caller drops the update.
func (m syncMap) update(key candlev1.Key, fn func(*entry)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// upsert runs fn under the write lock, inserting fresh first when the key
// is absent.
func (m syncMap) upsert(key candlev1.Key, fn func(*entry), fresh *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = fresh
		m.entries[key] = e
	}
	fn(e)
}

func (m syncMap) keys() []candlev1.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]candlev1.Key, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys
}

func (m syncMap) delete(key candlev1.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}
