// Package cache holds small in-process caches with explicit TTL rules.
package cache

import (
	"sync"
	"time"
)

// Memo is a single-slot cache: it remembers one value and the time it was
// stored. The value is served until ttl elapses or Invalidate is called.
type Memo[T any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	value    T
	storedAt time.Time
	entryTTL time.Duration
	valid    bool
}

// NewMemo creates an empty memo. A nil clock defaults to time.Now.
func NewMemo[T any](ttl time.Duration, clock func() time.Time) *Memo[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Memo[T]{ttl: ttl, now: clock}
}

// Get returns the stored value if it is still fresh.
func (m *Memo[T]) Get() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.valid || m.now().Sub(m.storedAt) >= m.entryTTL {
		var zero T
		return zero, false
	}
	return m.value, true
}

// Set overwrites the slot and restarts the TTL window.
func (m *Memo[T]) Set(v T) {
	m.SetFor(v, m.ttl)
}

// SetFor overwrites the slot with a value that stays fresh for ttl instead of
// the memo's default window.
func (m *Memo[T]) SetFor(v T, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.value = v
	m.storedAt = m.now()
	m.entryTTL = ttl
	m.valid = true
}

// Invalidate empties the slot so the next Get misses.
func (m *Memo[T]) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	m.value = zero
	m.valid = false
}

// GetOrCompute returns the fresh value or stores the result of compute.
// Concurrent misses may compute more than once; the last write wins.
func (m *Memo[T]) GetOrCompute(compute func() (T, error)) (T, bool, error) {
	if v, ok := m.Get(); ok {
		return v, true, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, false, err
	}
	m.Set(v)
	return v, false, nil
}
