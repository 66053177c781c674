// Package store abstracts the shared state backend used for rate windows,
// the cost ledger, and the response cache. All mutating operations are
// atomic at the key level; the pipeline relies on that for correctness
// under unbounded request parallelism and holds no in-process locks of
// its own.
package store

import (
	"context"
	"time"
)

// Store is the shared-state contract. A nil byte slice with a nil error
// from Get means the key is absent; absence is never an error.
type Store interface {
	// Get retrieves a raw value. Returns (nil, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a raw value with an absolute TTL from write time.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// GetFloat reads a numeric key. Returns 0 on a miss.
	GetFloat(ctx context.Context, key string) (float64, error)

	// IncrByFloat atomically adds delta to a numeric key, creating it at
	// zero if absent, and returns the new value.
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)

	// HIncrBy atomically adds delta to an integer hash field.
	HIncrBy(ctx context.Context, key, field string, delta int64) error

	// HIncrByFloat atomically adds delta to a float hash field.
	HIncrByFloat(ctx context.Context, key, field string, delta float64) error

	// HGetAll reads a whole hash. Returns an empty map on a miss.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Expire sets or refreshes a key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Keys lists keys matching a glob pattern. Administrative use only.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// WindowAdmit performs an atomic sliding-window check-and-admit on the
	// timestamp set at key: expire entries older than the window, count the
	// rest, and record member at the current time only if the count is
	// below limit. Returns (admitted, remaining). The whole operation is a
	// single linearizable step; concurrent callers cannot race between the
	// count and the insert.
	WindowAdmit(ctx context.Context, key string, window time.Duration, limit int, member string) (bool, int, error)

	// WindowCount counts live entries in a window without mutating state.
	WindowCount(ctx context.Context, key string, window time.Duration) (int, error)

	// Ping checks backend health.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
