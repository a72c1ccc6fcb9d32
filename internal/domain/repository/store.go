package repository

import (
	"context"
	"time"
)

// StateStore is the unified key-value + hash-map interface over the shared
// remote store with an in-process fallback. Implementations are provided by
// the infrastructure layer (Redis, memory, or a composition of both).
//
// No transactional guarantees are made across keys or backends; every tracker
// operation reads, modifies and writes a single record.
type StateStore interface {
	// Get retrieves a string value. Returns ErrKeyNotFound for absent keys.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a string value. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes a key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// HGet retrieves one field of a hash. Returns ErrKeyNotFound when the
	// hash or field is absent.
	HGet(ctx context.Context, hash, field string) (string, error)

	// HSet stores one field of a hash.
	HSet(ctx context.Context, hash, field, value string) error

	// HDel removes fields from a hash.
	HDel(ctx context.Context, hash string, fields ...string) error

	// HGetAll returns every field of a hash; empty map when absent.
	HGetAll(ctx context.Context, hash string) (map[string]string, error)

	// Keys returns all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Clear deletes all keys matching a glob pattern and returns the count.
	Clear(ctx context.Context, pattern string) (int, error)

	// Available reports whether the preferred remote backend is reachable.
	Available() bool
}
