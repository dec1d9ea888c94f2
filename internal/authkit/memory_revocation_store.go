package authkit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRevocationStore is an in-memory store intended for tests and dev.
type MemoryRevocationStore struct {
	mutex   sync.Mutex
	entries map[string]memoryEntry
	clock   Clock
}

type memoryEntry struct {
	Value     string
	ExpiresAt time.Time
}

// NewMemoryRevocationStore creates a new in-memory store. A nil clock uses the system clock.
func NewMemoryRevocationStore(clock Clock) *MemoryRevocationStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryRevocationStore{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// Put stores value under key until ttl elapses.
func (store *MemoryRevocationStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("revocation_store.put.memory: %w", ErrRevocationKeyEmpty)
	}
	if ttl <= 0 {
		return fmt.Errorf("revocation_store.put.memory: %w", ErrRevocationTTLInvalid)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.entries[key] = memoryEntry{Value: value, ExpiresAt: store.clock.Now().Add(ttl)}
	return nil
}

// Get returns the live value for key.
func (store *MemoryRevocationStore) Get(ctx context.Context, key string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[key]
	if !ok {
		return "", fmt.Errorf("revocation_store.get.memory: %w", ErrRevocationKeyNotFound)
	}
	if !store.clock.Now().Before(entry.ExpiresAt) {
		delete(store.entries, key)
		return "", fmt.Errorf("revocation_store.get.memory: %w", ErrRevocationKeyNotFound)
	}
	return entry.Value, nil
}

// Delete removes key if it is still live.
func (store *MemoryRevocationStore) Delete(ctx context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[key]
	if !ok {
		return fmt.Errorf("revocation_store.delete.memory: %w", ErrRevocationKeyNotFound)
	}
	delete(store.entries, key)
	if !store.clock.Now().Before(entry.ExpiresAt) {
		return fmt.Errorf("revocation_store.delete.memory: %w", ErrRevocationKeyNotFound)
	}
	return nil
}

// Len reports the number of live entries.
func (store *MemoryRevocationStore) Len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	now := store.clock.Now()
	live := 0
	for _, entry := range store.entries {
		if now.Before(entry.ExpiresAt) {
			live++
		}
	}
	return live
}

// PurgeExpired drops entries whose TTL has elapsed and reports how many were removed.
func (store *MemoryRevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	now := store.clock.Now()
	var purged int64
	for key, entry := range store.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(store.entries, key)
			purged++
		}
	}
	return purged, nil
}
