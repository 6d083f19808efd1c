// Package syncutil holds small mutex-guarded collections used for
// per-request bookkeeping.
package syncutil

import "sync"

// Set is a concurrency-safe set.
type Set[K comparable] struct {
	mu sync.Mutex
	m  map[K]struct{}
}

// NewSet creates an empty set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{m: make(map[K]struct{})}
}

// Add inserts k.
func (s *Set[K]) Add(k K) {
	s.mu.Lock()
	s.m[k] = struct{}{}
	s.mu.Unlock()
}

// Has reports whether k is present.
func (s *Set[K]) Has(k K) bool {
	s.mu.Lock()
	_, ok := s.m[k]
	s.mu.Unlock()
	return ok
}

// Remove deletes k.
func (s *Set[K]) Remove(k K) {
	s.mu.Lock()
	delete(s.m, k)
	s.mu.Unlock()
}

// Counter is a concurrency-safe counter per key.
type Counter[K comparable] struct {
	mu sync.Mutex
	m  map[K]int
}

// NewCounter creates an empty counter.
func NewCounter[K comparable]() *Counter[K] {
	return &Counter[K]{m: make(map[K]int)}
}

// Inc increments and returns the count for k.
func (c *Counter[K]) Inc(k K) int {
	c.mu.Lock()
	c.m[k]++
	n := c.m[k]
	c.mu.Unlock()
	return n
}

// Get returns the count for k.
func (c *Counter[K]) Get(k K) int {
	c.mu.Lock()
	n := c.m[k]
	c.mu.Unlock()
	return n
}

// Remove drops the count for k.
func (c *Counter[K]) Remove(k K) {
	c.mu.Lock()
	delete(c.m, k)
	c.mu.Unlock()
}
