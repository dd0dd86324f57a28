// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/fetchcoord/policy"

// lru moves entries to the front on resolve and on every fresh hit.
// The shard trims from the back when it goes over capacity.
type lru[V any] struct {
	h policy.Hooks[V]
}

type factory[V any] struct{}

// New returns a Policy that builds per-shard LRU instances.
func New[V any]() policy.Policy[V] { return factory[V]{} }

func (factory[V]) New(h policy.Hooks[V]) policy.ShardPolicy[V] {
	return &lru[V]{h: h}
}

func (p *lru[V]) OnAdd(n policy.Node[V]) policy.Node[V] {
	p.h.PushFront(n)
	return nil
}

func (p *lru[V]) OnGet(n policy.Node[V]) { p.h.MoveToFront(n) }

// OnRemove has no policy state to clean up.
func (p *lru[V]) OnRemove(policy.Node[V]) {}
