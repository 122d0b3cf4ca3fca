// Package ledgerstore implements the pluggable, backend-agnostic storage
// capability the core consumes (§4.3): put, get, update, append_event. Four
// variants implement the same semantics — in_memory, redis, postgres, and a
// firestore stub — so property tests run uniformly across backends. The
// capability shape and the redis JSON-document pattern are adapted from the
// reference corpus's double-entry ledger and waterfall-config stores, which
// already do Get/Set-as-JSON-blob over go-redis.
package ledgerstore

import (
	"context"
	"errors"
)

// ErrNotFound names an absent key. Get does not return it: every backend
// reports an absent key as ok=false with a nil error.
var ErrNotFound = errors.New("ledgerstore: key not found")

// Mutator reads the current value for a key (exists=false if absent) and
// returns the new value to persist. Returning the input unchanged is a
// legitimate no-op (used by idempotent updates).
type Mutator func(current []byte, exists bool) (next []byte, err error)

// Store is the minimal operation set the core depends on. Implementations
// must make Update atomic per key with respect to concurrent updaters, and
// AppendEvent atomic with respect to concurrent appenders on the same key.
// All operations take a context because every real backend (redis,
// postgres) performs I/O that may suspend; the in-memory backend accepts
// ctx for interface uniformity and checks it for cancellation only in
// Update, since its own work never blocks.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Update(ctx context.Context, key string, mutate Mutator) (next []byte, err error)
	AppendEvent(ctx context.Context, key string, event []byte) error
	// Events returns the ordered event history appended under key.
	Events(ctx context.Context, key string) ([][]byte, error)
}
