// Package policy defines the eviction-policy contract used by the cache when
// it runs with a capacity bound.
//
// Only resolved entries are ever handed to a policy. Pending entries (a
// producer call still in flight) live in the shard map but not in the
// eviction list, so no policy can evict a key while its producer runs.
package policy

// Node is the view of a resolved cache entry that a policy can see.
type Node[V any] interface {
	Key() string
	Value() *V
}

// Hooks expose O(1) operations on the shard's MRU/LRU list.
// All calls happen under the shard lock; the shard owns the key map.
type Hooks[V any] interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node[V])
	// PushFront links a newly resolved node at MRU.
	PushFront(Node[V])
	// Remove unlinks the node from the list.
	Remove(Node[V])
	// Back returns the current LRU node (or nil if empty).
	Back() Node[V]
	// Len returns the number of linked nodes.
	Len() int
}

// ShardPolicy is a per-shard policy instance bound to shard hooks.
//
//   - OnAdd runs when an entry resolves. It may return a node the shard
//     should evict (e.g. LRU of a probation queue).
//   - OnGet runs on a fresh hit.
//   - OnRemove runs before a resolved node leaves the list, for any reason:
//     eviction, invalidation, or the node turning pending for a refresh.
type ShardPolicy[V any] interface {
	OnAdd(Node[V]) (evict Node[V])
	OnGet(Node[V])
	OnRemove(Node[V])
}

// Policy creates shard-local policy instances.
type Policy[V any] interface {
	New(Hooks[V]) ShardPolicy[V]
}
