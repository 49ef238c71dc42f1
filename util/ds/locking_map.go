package ds

import (
	"iter"
	"maps"
	"slices"
	"sync"
)

// LockingMap is a map guarded by a read-write lock. Readers of many entries
// get a snapshot so writers aren't blocked while callers iterate.
type LockingMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewLockingMap[K comparable, V any]() *LockingMap[K, V] {
	return &LockingMap[K, V]{m: make(map[K]V)}
}

func (m *LockingMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.m[key]
	return value, ok
}

func (m *LockingMap[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

func (m *LockingMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

func (m *LockingMap[K, V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Keys returns a snapshot of the keys in no particular order.
func (m *LockingMap[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Keys(m.m))
}

// All yields the entries of a snapshot taken when iteration starts.
func (m *LockingMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.mu.RLock()
		snapshot := maps.Clone(m.m)
		m.mu.RUnlock()

		for k, v := range snapshot {
			if !yield(k, v) {
				return
			}
		}
	}
}
