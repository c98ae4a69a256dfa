package services

import (
	"fmt"
	"sync"
)

// KeyLocks serializes engine work per correlation grouping key so that two
// concurrent sweeps never both create an incident for the same
// (tenant, asset, signature) triple. Different keys, and therefore
// different tenants, proceed in parallel.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocks creates an empty lock registry
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// GroupingKey builds the canonical correlation key for an alert
func GroupingKey(tenantID uint, assetID, signature string) string {
	return fmt.Sprintf("%d|%s|%s", tenantID, assetID, signature)
}

// Lock acquires the mutex for key, creating it on first use
func (k *KeyLocks) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key and removes it once unused,
// so the registry does not grow with the number of keys ever seen.
func (k *KeyLocks) Unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
