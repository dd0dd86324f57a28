// Package cache provides a request-deduplicating, in-memory TTL cache for
// coordinating concurrent fetches (profiles, scores, leaderboard pages).
//
// Design
//
//   - Single flight: each key maps to an entry that is either Pending (a
//     producer call is running) or Resolved (a value and the time it was
//     stored). The check-then-mark-pending step runs under one shard lock,
//     so for a given key at most one producer call is active while its
//     entry is resident. Later callers attach to the running call.
//
//   - Failures: a failed (or panicking) producer call is delivered to every
//     attached caller and the entry is dropped. Errors are never cached.
//
//   - TTL: a value is fresh while now-storedAt < ttl, where ttl is the one
//     passed by the Get that started the load. Staleness is detected lazily;
//     there is no background refresh. A ttl of 0 always revalidates.
//
//   - Cancellation: producers run on their own goroutine with a context that
//     is never cancelled by callers. A caller whose ctx ends stops waiting;
//     the call still completes and updates the cache.
//
//   - Invalidate/Clear remove entries in any state. A running producer is
//     not cancelled, but its result is not stored.
//
//   - Concurrency: keys are spread over power-of-two shards by xxhash, each
//     with its own mutex.
//
//   - Bounded mode: with Options.Capacity > 0, resolved entries are kept in
//     an intrusive MRU↔LRU list driven by a pluggable policy (LRU default,
//     2Q in policy/twoq). Pending entries are never evicted. Capacity 0
//     keeps every key for the lifetime of the cache.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Shared/LoadError/Evict/Size
//     signals; see metrics/prom for a Prometheus adapter.
//
// Basic usage
//
//	c := cache.New[Profile](cache.Options[Profile]{})
//	p, err := c.Get(ctx, "profile:0xabc", func(ctx context.Context) (Profile, error) {
//	    return api.FetchProfile(ctx, "0xabc")
//	}, 5*time.Second)
//
// Bounded, with 2Q
//
//	c := cache.New[Page](cache.Options[Page]{
//	    Shards:   4,
//	    Capacity: 4_096,
//	    Policy:   twoq.New[Page](256 /* probation per shard */, 512 /* ghosts */),
//	})
package cache
