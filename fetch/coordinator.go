// Package fetch composes the deduplicating cache and the retry executor into
// the single entry point application code uses to fetch builder data.
package fetch

import (
	"context"
	"time"

	"github.com/IvanBrykalov/fetchcoord/cache"
	"github.com/IvanBrykalov/fetchcoord/retry"
	"github.com/rs/zerolog"
)

// Coordinator serves fetches from a shared cache and, on a miss, runs the
// producer through the retry executor. One Coordinator is meant to be built
// at the composition root and handed to every call site.
type Coordinator[V any] struct {
	cache       cache.Cache[V]
	retry       *retry.Executor
	shouldRetry func(error) bool
	logger      zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*settings)

type settings struct {
	shouldRetry func(error) bool
	logger      zerolog.Logger
}

// WithShouldRetry overrides the executor's retry predicate for this coordinator.
func WithShouldRetry(fn func(error) bool) Option {
	return func(s *settings) { s.shouldRetry = fn }
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New returns a coordinator over c. A nil executor calls producers directly.
func New[V any](c cache.Cache[V], r *retry.Executor, opts ...Option) *Coordinator[V] {
	if c == nil {
		panic("fetch: nil cache")
	}
	s := settings{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return &Coordinator[V]{cache: c, retry: r, shouldRetry: s.shouldRetry, logger: s.logger}
}

// Fetch returns the value for key, loading it with producer when the cache
// has no fresh value and no call in flight. Retries happen inside the single
// shared call, so concurrent callers never multiply upstream traffic.
func (f *Coordinator[V]) Fetch(ctx context.Context, key string, ttl time.Duration, producer cache.Producer[V]) (V, error) {
	if producer == nil {
		var zero V
		return zero, cache.ErrNilProducer
	}
	load := producer
	if f.retry != nil {
		load = func(ctx context.Context) (V, error) {
			return retry.Do[V](ctx, f.retry, producer, f.shouldRetry)
		}
	}

	v, err := f.cache.Get(ctx, key, load, ttl)
	if err != nil && ctx.Err() == nil {
		f.logger.Debug().Err(err).Str("key", key).Msg("fetch: failed")
	}
	return v, err
}

// Invalidate drops key so the next Fetch loads it again.
func (f *Coordinator[V]) Invalidate(key string) bool { return f.cache.Invalidate(key) }

// Clear drops every cached value.
func (f *Coordinator[V]) Clear() { f.cache.Clear() }

// Cache exposes the underlying cache, e.g. for Stats.
func (f *Coordinator[V]) Cache() cache.Cache[V] { return f.cache }
