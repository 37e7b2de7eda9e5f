// Package cache provides the generic key-value store shared by the rate
// limiter, anti-spam engine, and queue persistence. A fast in-memory tier
// fronts an optional bbolt tier; when the persistent tier fails the cache
// enters an explicit degraded mode instead of swallowing the error.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Store is the generic TTL key-value contract consumed by the gate subsystems.
// Values are opaque bytes; callers own encoding.
type Store interface {
	// Get returns the value and whether the key exists (expired keys do not).
	Get(key string) ([]byte, bool, error)
	// Set stores a value. ttl <= 0 means no expiry.
	Set(key string, value []byte, ttl time.Duration) error
	// Del removes a key. Deleting a missing key is not an error.
	Del(key string) error
	// Keys returns all live keys with the given prefix.
	Keys(prefix string) ([]string, error)
}

// TTLReporter is implemented by stores that can report a key's remaining
// lifetime. A zero duration with found=true means the entry never expires.
type TTLReporter interface {
	TTL(key string) (time.Duration, bool, error)
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the in-process tier: map + RWMutex with lazy TTL expiry and a
// hard cap on tracked keys so rotating subjects cannot exhaust memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	maxKeys int
}

// NewMemory creates an in-memory store capped at maxKeys (0 = default 8192).
func NewMemory(maxKeys int) *Memory {
	if maxKeys <= 0 {
		maxKeys = 8192
	}
	return &Memory{
		entries: make(map[string]memEntry),
		maxKeys: maxKeys,
	}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.maxKeys {
		m.evictLocked()
	}

	m.entries[key] = memEntry{value: value, expiresAt: expires}
	return nil
}

// evictLocked prunes expired entries, then hard-evicts until under the cap.
func (m *Memory) evictLocked() {
	now := time.Now()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	for len(m.entries) >= m.maxKeys {
		for k := range m.entries {
			delete(m.entries, k)
			break
		}
	}
}

func (m *Memory) Del(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if e.expired(now) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Sweep removes expired entries eagerly. Called by the maintenance scheduler.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
