// Package data stores dose lists behind the interfaces.DoseStore contract.
// The in-memory store keeps an immutable map behind an atomic pointer so
// readers never block; Redis and Postgres stores persist across restarts.
package data

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/logging"
)

// Compile-time check to ensure MemoryStore implements DoseStore
var _ interfaces.DoseStore = (*MemoryStore)(nil)

// MemoryStore holds all values in process memory with copy-on-write updates
type MemoryStore struct {
	entries     atomic.Value // map[string]string
	lastUpdated atomic.Value // time.Time
	writeMu     sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{}
	ms.entries.Store(make(map[string]string))
	ms.lastUpdated.Store(time.Time{})
	return ms
}

func (ms *MemoryStore) snapshot() map[string]string {
	if v := ms.entries.Load(); v != nil {
		if entries, ok := v.(map[string]string); ok {
			return entries
		}
	}

	logging.Warn("Memory store snapshot is empty or invalid")
	return map[string]string{}
}

// Get returns the value stored under key
func (ms *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := ms.snapshot()[key]
	return value, ok, nil
}

// Set stores value under key, replacing the whole map atomically
func (ms *MemoryStore) Set(_ context.Context, key, value string) error {
	ms.update(func(entries map[string]string) {
		entries[key] = value
	})
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (ms *MemoryStore) Delete(_ context.Context, key string) error {
	ms.update(func(entries map[string]string) {
		delete(entries, key)
	})
	return nil
}

// Update holds the write lock across fn so read-modify-write cycles on the
// same store are serialized
func (ms *MemoryStore) Update(_ context.Context, key string, fn func(string) (string, error)) (bool, error) {
	ms.writeMu.Lock()
	defer ms.writeMu.Unlock()

	current, ok := ms.snapshot()[key]
	if !ok {
		return false, nil
	}

	value, err := fn(current)
	if err != nil {
		return true, err
	}

	ms.swap(func(entries map[string]string) {
		entries[key] = value
	})
	return true, nil
}

func (ms *MemoryStore) update(mutate func(map[string]string)) {
	ms.writeMu.Lock()
	defer ms.writeMu.Unlock()

	ms.swap(mutate)
}

// swap must be called with writeMu held
func (ms *MemoryStore) swap(mutate func(map[string]string)) {
	next := maps.Clone(ms.snapshot())
	mutate(next)

	// Atomic swap (readers keep the previous map until they finish)
	ms.entries.Store(next)
	ms.lastUpdated.Store(time.Now())
}

// Len returns the number of stored keys
func (ms *MemoryStore) Len() int {
	return len(ms.snapshot())
}

// GetLastUpdated returns the time of the last write
func (ms *MemoryStore) GetLastUpdated() time.Time {
	if v := ms.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}
	return time.Time{}
}

func (ms *MemoryStore) Ping(context.Context) error { return nil }

func (ms *MemoryStore) Close() error { return nil }

func (ms *MemoryStore) Backend() string { return "memory" }
