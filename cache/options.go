package cache

import (
	"github.com/IvanBrykalov/fetchcoord/policy"
	"github.com/rs/zerolog"
)

// EvictReason explains why a resolved entry was dropped by a bounded cache.
type EvictReason int

const (
	// EvictCapacity: trimmed from the back of the list to fit Capacity.
	EvictCapacity EvictReason = iota
	// EvictPolicy: proposed by the policy on admission (e.g. 2Q probation overflow).
	EvictPolicy
)

func (r EvictReason) String() string {
	switch r {
	case EvictPolicy:
		return "policy"
	default:
		return "capacity"
	}
}

// Metrics exposes cache-level observability hooks.
// NoopMetrics is used when Options.Metrics is nil.
type Metrics interface {
	// Hit: a fresh value was served without calling a producer.
	Hit()
	// Miss: this caller started a producer call.
	Miss()
	// Shared: this caller attached to a producer call already in flight.
	Shared()
	// LoadError: a producer call failed (the entry was dropped).
	LoadError()
	// Evict: a resolved entry was dropped to respect Capacity.
	Evict(reason EvictReason)
	// Size reports the resident entry count (pending + resolved).
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a cache. Zero values are safe; New applies defaults:
//   - Shards <= 0    => auto (power of two)
//   - Capacity 0     => unbounded
//   - nil Policy     => LRU (bounded caches only)
//   - nil Metrics    => NoopMetrics
//   - nil Logger     => zerolog.Nop()
type Options[V any] struct {
	// Shards is the number of independently locked partitions.
	Shards int

	// Capacity bounds the number of resolved entries, split evenly across
	// shards. Pending entries are never evicted. 0 keeps every key for
	// the cache's lifetime.
	Capacity int

	// Policy picks eviction victims in a bounded cache.
	Policy policy.Policy[V]

	// OnEvict is called under the shard lock; keep it cheap.
	OnEvict func(key string, v V, reason EvictReason)
	Metrics Metrics
	Logger  *zerolog.Logger

	// Clock overrides the time source. Nil => time.Now().
	Clock Clock
}
