package cache

import "context"

// Package cache provides a small TTL key-value cache used for conversation
// memory persistence and repeated analytics computations.
//
// Keys are plain strings (e.g. "memory:<session_id>", "details:<user>:<metric>").
// Values are opaque byte slices; callers own serialization.

// Cache defines the key-value cache contract.
type Cache interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key. TTL is governed by the cache's
	// construction-time expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Len reports the number of live entries.
	Len(ctx context.Context) (int, error)
}
