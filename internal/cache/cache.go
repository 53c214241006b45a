// Package cache provides the low-latency TTL key/value store backing the
// location view. A Redis-backed store is primary; an in-process store with
// the same TTL semantics serves as fallback so callers never branch on which
// backend is active.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the key/value contract shared by the Redis and in-process
// backends.
type Store interface {
	// Set stores value under key for ttl. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves the value for key. Returns ErrMiss when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// KeysWithPrefix lists all live keys starting with prefix.
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
