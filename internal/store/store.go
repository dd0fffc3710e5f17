package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the key is absent or its TTL has elapsed.
	ErrNotFound = errors.New("store: key not found")

	// ErrUnavailable means the backing service could not be reached or
	// timed out. It is never collapsed into ErrNotFound: callers on the
	// authentication path must fail closed, not treat an outage as
	// "no session".
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the key-value persistence boundary for sessions and OTP
// records. Expiry is owned by the backing service: a value written with a
// positive ttl is evicted natively once the ttl elapses, with no cleanup
// call required. A ttl of zero means no expiry.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes keys. Deleting an absent key is a no-op.
	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments a counter and refreshes its expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Scan returns all keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
}
