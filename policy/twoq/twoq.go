// Package twoq implements a 2Q eviction policy.
//
// Fetch workloads often scan: a leaderboard walk touches hundreds of
// profiles once. 2Q keeps such one-off keys in a small probation queue
// (A1in) so they cannot flush the keys that are requested repeatedly (Am).
// Keys evicted from probation are remembered in a ghost list (A1out); if
// they come back they skip probation.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/fetchcoord/policy"
)

// twoQ is not safe for concurrent use; the shard lock serialises all calls.
type twoQ[V any] struct {
	h policy.Hooks[V]

	probationCap int
	ghostCap     int

	// probation holds A1in nodes, MRU at Front.
	probation *list.List
	inProb    map[policy.Node[V]]*list.Element

	// ghosts holds keys recently dropped from probation, MRU at Front.
	ghosts  *list.List
	inGhost map[string]*list.Element
}

type factory[V any] struct {
	probationCap int
	ghostCap     int
}

// New returns a 2Q policy factory. Sizes are per shard; values below 1 are raised to 1.
// A common choice is probation ≈ 25% and ghosts ≈ 50% of the shard capacity.
func New[V any](probation, ghosts int) policy.Policy[V] {
	return factory[V]{probationCap: max(probation, 1), ghostCap: max(ghosts, 1)}
}

func (f factory[V]) New(h policy.Hooks[V]) policy.ShardPolicy[V] {
	return &twoQ[V]{
		h:            h,
		probationCap: f.probationCap,
		ghostCap:     f.ghostCap,
		probation:    list.New(),
		inProb:       make(map[policy.Node[V]]*list.Element),
		ghosts:       list.New(),
		inGhost:      make(map[string]*list.Element),
	}
}

// OnAdd admits a resolved node. Remembered keys go straight to Am;
// everything else enters probation, whose overflow is proposed for eviction.
func (q *twoQ[V]) OnAdd(n policy.Node[V]) policy.Node[V] {
	q.h.PushFront(n)

	if el, ok := q.inGhost[n.Key()]; ok {
		q.ghosts.Remove(el)
		delete(q.inGhost, n.Key())
		return nil
	}

	q.inProb[n] = q.probation.PushFront(n)
	if q.probation.Len() > q.probationCap {
		return q.probation.Back().Value.(policy.Node[V])
	}
	return nil
}

// OnGet promotes a probation node to Am on its second use.
func (q *twoQ[V]) OnGet(n policy.Node[V]) {
	if el, ok := q.inProb[n]; ok {
		q.probation.Remove(el)
		delete(q.inProb, n)
	}
	q.h.MoveToFront(n)
}

// OnRemove remembers keys that leave probation. Am removals leave no ghost.
func (q *twoQ[V]) OnRemove(n policy.Node[V]) {
	el, ok := q.inProb[n]
	if !ok {
		return
	}
	q.probation.Remove(el)
	delete(q.inProb, n)

	k := n.Key()
	if old, ok := q.inGhost[k]; ok {
		q.ghosts.Remove(old)
	}
	q.inGhost[k] = q.ghosts.PushFront(k)

	for q.ghosts.Len() > q.ghostCap {
		tail := q.ghosts.Back()
		delete(q.inGhost, tail.Value.(string))
		q.ghosts.Remove(tail)
	}
}
