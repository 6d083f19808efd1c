// Package keyed provides per-key mutual exclusion so unrelated users are
// never serialized behind one another.
package keyed

import "sync"

// Mutex hands out one lock per key.
type Mutex struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock acquires the lock for key and returns the matching unlock func.
func (m *Mutex) Lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
