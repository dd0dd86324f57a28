package cache

import (
	"context"
	"time"
)

// Producer computes the value for one key, typically by doing I/O.
// It runs with a context that carries the first caller's values but is
// never cancelled by callers giving up.
type Producer[V any] func(ctx context.Context) (V, error)

// Cache is a request-deduplicating TTL cache keyed by strings.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[V any] interface {
	// Get returns a fresh value for key, or runs producer to obtain one.
	//
	// Concurrent Gets for a key whose producer is still running attach to
	// that call instead of starting another. A successful result is stored
	// with the ttl passed by the Get that started the call; a failure is
	// returned to every attached caller and nothing is stored. A ttl of 0
	// always revalidates; negative ttls are treated as 0.
	//
	// If ctx is done before the result is ready, Get returns ctx.Err() for
	// this caller only; the producer keeps running and its result is still
	// stored.
	Get(ctx context.Context, key string, producer Producer[V], ttl time.Duration) (V, error)

	// Peek returns the value for key if it is resolved and fresh.
	// It never calls a producer and does not count as a hit.
	Peek(key string) (V, bool)

	// Invalidate removes key, including a pending entry. A running producer
	// is not cancelled, but its result will not be stored. It reports
	// whether an entry existed.
	Invalidate(key string) bool

	// Clear removes every entry.
	Clear()

	// Len returns the number of resident entries, pending ones included.
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// Close marks the cache closed. Later Gets return ErrClosed; producer
	// calls already running still deliver to their waiters.
	Close() error
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits       uint64 // fresh values served
	Misses     uint64 // producer calls started
	Shared     uint64 // Gets that attached to an in-flight call
	LoadErrors uint64 // producer calls that failed
	Discarded  uint64 // results dropped because the entry was invalidated meanwhile
	Evictions  uint64 // resolved entries dropped to respect Capacity
	Entries    int    // resident entries
}
