package cache

import "github.com/IvanBrykalov/fetchcoord/internal/flight"

// state tags which half of the entry variant is valid.
type state uint8

const (
	// statePending: a producer call is running; call is set, val is unset.
	statePending state = iota
	// stateResolved: val/storedAt are set, call is nil.
	stateResolved
)

// entry is the per-key slot owned by a shard. It is either
// Pending(call) or Resolved(val, storedAt, ttl); all fields are guarded by
// the shard lock.
type entry[V any] struct {
	key   string
	state state

	call *flight.Call[V]

	val      V
	storedAt int64 // UnixNano
	ttl      int64 // nanoseconds; the ttl of the Get that started the load

	// Eviction list links. Only resolved entries are linked, and only when
	// the cache is bounded.
	prev, next *entry[V]
	linked     bool
}

func newPending[V any](key string, ttl int64) *entry[V] {
	return &entry[V]{key: key, state: statePending, call: flight.New[V](), ttl: ttl}
}

// fresh reports whether a resolved value is young enough to serve.
// A ttl of 0 is never fresh.
func (e *entry[V]) fresh(now int64) bool {
	return e.state == stateResolved && now-e.storedAt < e.ttl
}

// resolve flips a pending entry to resolved.
func (e *entry[V]) resolve(v V, now int64) {
	e.state = stateResolved
	e.val = v
	e.storedAt = now
	e.call = nil
}

// Key implements policy.Node.
func (e *entry[V]) Key() string { return e.key }

// Value implements policy.Node. Only valid under the shard lock.
func (e *entry[V]) Value() *V { return &e.val }
