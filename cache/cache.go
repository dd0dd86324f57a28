package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/fetchcoord/internal/flight"
	"github.com/IvanBrykalov/fetchcoord/internal/util"
	"github.com/IvanBrykalov/fetchcoord/policy/lru"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("cache: closed")
	// ErrNilProducer is returned by Get when producer is nil.
	ErrNilProducer = errors.New("cache: nil producer")
	// ErrProducerPanic wraps the value recovered from a panicking producer.
	ErrProducerPanic = errors.New("cache: producer panicked")
)

// cache is a sharded request-deduplicating TTL cache.
type cache[V any] struct {
	shards   []*shard[V]
	closed   atomic.Bool
	resident atomic.Int64

	opt    Options[V]
	logger zerolog.Logger
}

// New constructs a cache with the provided Options.
// Capacity must not be negative.
func New[V any](opt Options[V]) Cache[V] {
	if opt.Capacity < 0 {
		panic("cache: Capacity must be >= 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[V]()
	}
	logger := zerolog.Nop()
	if opt.Logger != nil {
		logger = *opt.Logger
	}

	c := &cache[V]{opt: opt, logger: logger}

	n := util.ShardCount(opt.Shards)
	perShard := 0
	if opt.Capacity > 0 {
		perShard = (opt.Capacity + n - 1) / n
	}
	c.shards = make([]*shard[V], n)
	for i := range c.shards {
		c.shards[i] = newShard[V](perShard, &c.opt, &c.resident)
	}
	return c
}

// Get serves key from a fresh entry, an in-flight call, or a new producer call.
func (c *cache[V]) Get(ctx context.Context, key string, producer Producer[V], ttl time.Duration) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if producer == nil {
		return zero, ErrNilProducer
	}
	if ttl < 0 {
		ttl = 0
	}

	s := c.shardFor(key)
	t := s.acquire(key, int64(ttl), c.now())
	if t.hit {
		return t.val, nil
	}
	if t.owner != nil {
		go c.produce(context.WithoutCancel(ctx), s, t.owner, t.call, producer)
	}
	return t.call.Wait(ctx)
}

// produce runs the producer once, settles the entry, then releases waiters.
// Settling first means a waiter that immediately calls Get again sees the
// stored value.
func (c *cache[V]) produce(ctx context.Context, s *shard[V], owner *entry[V], call *flight.Call[V], producer Producer[V]) {
	start := c.now()
	v, err := runProducer(ctx, producer)
	applied := s.settle(owner, v, err, c.now())
	took := time.Duration(c.now() - start)

	switch {
	case errors.Is(err, ErrProducerPanic):
		c.logger.Warn().Err(err).Str("key", owner.key).Msg("cache: producer panicked")
	case !applied:
		c.logger.Debug().AnErr("producerErr", err).Str("key", owner.key).Dur("took", took).
			Msg("cache: entry invalidated during load, result not stored")
	case err != nil:
		c.logger.Debug().Err(err).Str("key", owner.key).Dur("took", took).Msg("cache: load failed")
	default:
		c.logger.Debug().Str("key", owner.key).Dur("took", took).Msg("cache: loaded")
	}

	call.Resolve(v, err)
}

func runProducer[V any](ctx context.Context, producer Producer[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v, err = zero, fmt.Errorf("%w: %v", ErrProducerPanic, r)
		}
	}()
	return producer(ctx)
}

// Peek returns a fresh resolved value without calling a producer.
func (c *cache[V]) Peek(key string) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(key).peek(key, c.now())
}

// Invalidate removes key in any state.
func (c *cache[V]) Invalidate(key string) bool {
	return c.shardFor(key).remove(key)
}

// Clear removes all entries from all shards.
func (c *cache[V]) Clear() {
	for _, s := range c.shards {
		s.clear()
	}
}

// Len returns the number of resident entries.
func (c *cache[V]) Len() int { return int(c.resident.Load()) }

// Stats sums the per-shard counters.
func (c *cache[V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		ss := s.stats()
		st.Hits += ss.Hits
		st.Misses += ss.Misses
		st.Shared += ss.Shared
		st.LoadErrors += ss.LoadErrors
		st.Discarded += ss.Discarded
		st.Evictions += ss.Evictions
	}
	st.Entries = c.Len()
	return st
}

// Close marks the cache closed.
func (c *cache[V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

func (c *cache[V]) shardFor(key string) *shard[V] {
	return c.shards[util.ShardIndex(util.HashKey(key), len(c.shards))]
}

func (c *cache[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
