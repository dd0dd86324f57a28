// Package flight holds the handle to a single running producer call.
package flight

import (
	"context"
	"sync"
)

// Call is shared by every caller that attached to one producer invocation.
//
// Concurrency notes:
//   - Publishing (val, err) happens-before close(done), so reads after
//     <-done observe the final values.
//   - Waiters that give up (ctx done) do not affect the call; it still runs
//     to completion and publishes its result.
type Call[V any] struct {
	done chan struct{}
	once sync.Once
	val  V
	err  error
}

// New returns an unresolved call.
func New[V any]() *Call[V] {
	return &Call[V]{done: make(chan struct{})}
}

// Resolve publishes the result and releases all waiters.
// Only the first Resolve has an effect.
func (c *Call[V]) Resolve(v V, err error) {
	c.once.Do(func() {
		c.val, c.err = v, err
		close(c.done)
	})
}

// Wait blocks until the call settles or ctx is done, whichever comes first.
// A done ctx returns ctx.Err() for this waiter only.
func (c *Call[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	default:
	}
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
