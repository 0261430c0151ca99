// Package repository defines the durable key-value store backing tab state.
package repository

import (
	"context"
	"strconv"
	"strings"
)

// TabStateKeyPrefix prefixes every persisted tab state key.
const TabStateKeyPrefix = "tabState:"

// Store provides byte-oriented key-value persistence.
type Store interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key is unknown.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// TabStateKey returns the storage key for a tab, e.g. "tabState:42".
func TabStateKey(tabID int) string {
	return TabStateKeyPrefix + strconv.Itoa(tabID)
}

// ParseTabStateKey extracts the tab identifier from a key built by TabStateKey.
func ParseTabStateKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, TabStateKeyPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}
