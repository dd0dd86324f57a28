package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/fetchcoord/internal/flight"
	"github.com/IvanBrykalov/fetchcoord/internal/util"
	"github.com/IvanBrykalov/fetchcoord/policy"
)

// shard is an independently locked partition: a key map plus, in a bounded
// cache, an intrusive list of resolved entries (head=MRU, tail=LRU).
type shard[V any] struct {
	// ---- guarded by mu ----
	mu     sync.Mutex
	m      map[string]*entry[V]
	head   *entry[V]
	tail   *entry[V]
	linked int // resolved entries in the list
	cap    int // per-shard capacity; 0 = unbounded

	pol     policy.ShardPolicy[V] // nil when unbounded
	factory policy.Policy[V]
	opt     *Options[V]

	resident *atomic.Int64 // cache-wide entry count

	// ---- counters ----
	_          util.CacheLinePad
	hits       util.Counter
	misses     util.Counter
	shared     util.Counter
	loadErrors util.Counter
	discarded  util.Counter
	evictions  util.Counter
}

func newShard[V any](capacity int, opt *Options[V], resident *atomic.Int64) *shard[V] {
	s := &shard[V]{
		m:        make(map[string]*entry[V]),
		cap:      capacity,
		opt:      opt,
		resident: resident,
	}
	if capacity > 0 {
		s.factory = opt.Policy
		s.pol = s.factory.New(shardHooks[V]{s: s})
	}
	return s
}

// ticket is the outcome of acquire. Exactly one of these holds:
//   - hit:          val is the fresh value
//   - owner != nil: the caller must run the producer and settle owner
//   - otherwise:    the caller waits on call
type ticket[V any] struct {
	val   V
	hit   bool
	call  *flight.Call[V]
	owner *entry[V]
}

// acquire performs the check-then-mark-pending step under one lock hold,
// so at most one caller per key becomes the owner of a producer call.
func (s *shard[V]) acquire(key string, ttl, now int64) ticket[V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[key]; ok {
		switch {
		case e.state == statePending:
			s.shared.Add(1)
			s.opt.Metrics.Shared()
			return ticket[V]{call: e.call}
		case e.fresh(now):
			if s.pol != nil {
				s.pol.OnGet(e)
			}
			s.hits.Add(1)
			s.opt.Metrics.Hit()
			return ticket[V]{val: e.val, hit: true}
		default:
			// Stale: replace with a new pending entry.
			s.unlinkLocked(e)
			delete(s.m, key)
			s.resident.Add(-1)
		}
	}

	e := newPending[V](key, ttl)
	s.m[key] = e
	s.resident.Add(1)
	s.misses.Add(1)
	s.opt.Metrics.Miss()
	s.opt.Metrics.Size(int(s.resident.Load()))
	return ticket[V]{call: e.call, owner: e}
}

// settle records the outcome of owner's producer call. It reports whether
// the outcome was applied; false means the entry was invalidated or
// replaced while the call ran and the result is not stored.
func (s *shard[V]) settle(owner *entry[V], v V, err error, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.loadErrors.Add(1)
		s.opt.Metrics.LoadError()
	}

	if cur, ok := s.m[owner.key]; !ok || cur != owner {
		s.discarded.Add(1)
		return false
	}

	if err != nil {
		delete(s.m, owner.key)
		s.resident.Add(-1)
		s.opt.Metrics.Size(int(s.resident.Load()))
		return true
	}

	owner.resolve(v, now)
	if s.pol != nil {
		if ev := s.pol.OnAdd(owner); ev != nil {
			s.evictLocked(ev.(*entry[V]), EvictPolicy)
		}
		s.enforceCapacityLocked()
	}
	s.opt.Metrics.Size(int(s.resident.Load()))
	return true
}

// peek returns a fresh value without touching policy state.
func (s *shard[V]) peek(key string, now int64) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[key]; ok && e.fresh(now) {
		return e.val, true
	}
	var zero V
	return zero, false
}

// remove deletes key in any state. Returns true if an entry existed.
func (s *shard[V]) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return false
	}
	s.unlinkLocked(e)
	delete(s.m, key)
	s.resident.Add(-1)
	s.opt.Metrics.Size(int(s.resident.Load()))
	return true
}

// clear drops every entry and starts a fresh policy instance.
func (s *shard[V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resident.Add(-int64(len(s.m)))
	s.m = make(map[string]*entry[V])
	for e := s.head; e != nil; {
		next := e.next
		e.prev, e.next, e.linked = nil, nil, false
		e = next
	}
	s.head, s.tail, s.linked = nil, nil, 0
	if s.factory != nil {
		s.pol = s.factory.New(shardHooks[V]{s: s})
	}
	s.opt.Metrics.Size(int(s.resident.Load()))
}

func (s *shard[V]) stats() Stats {
	return Stats{
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Shared:     s.shared.Load(),
		LoadErrors: s.loadErrors.Load(),
		Discarded:  s.discarded.Load(),
		Evictions:  s.evictions.Load(),
	}
}

// -------------------- internals (mu held) --------------------

// unlinkLocked detaches a resolved entry from the policy and the list.
func (s *shard[V]) unlinkLocked(e *entry[V]) {
	if !e.linked {
		return
	}
	s.pol.OnRemove(e)
	s.removeFromList(e)
}

func (s *shard[V]) evictLocked(e *entry[V], reason EvictReason) {
	s.unlinkLocked(e)
	delete(s.m, e.key)
	s.resident.Add(-1)
	s.evictions.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(e.key, e.val, reason)
	}
}

func (s *shard[V]) enforceCapacityLocked() {
	for s.linked > s.cap && s.tail != nil {
		s.evictLocked(s.tail, EvictCapacity)
	}
}

func (s *shard[V]) pushFront(e *entry[V]) {
	if e.linked {
		return
	}
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	e.linked = true
	s.linked++
}

func (s *shard[V]) moveToFront(e *entry[V]) {
	if !e.linked || e == s.head {
		return
	}
	s.removeFromList(e)
	s.pushFront(e)
}

func (s *shard[V]) removeFromList(e *entry[V]) {
	if !e.linked {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.head == e {
		s.head = e.next
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev, e.next, e.linked = nil, nil, false
	s.linked--
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard list to policy.Hooks.
type shardHooks[V any] struct{ s *shard[V] }

func (h shardHooks[V]) MoveToFront(n policy.Node[V]) { h.s.moveToFront(n.(*entry[V])) }
func (h shardHooks[V]) PushFront(n policy.Node[V])   { h.s.pushFront(n.(*entry[V])) }
func (h shardHooks[V]) Remove(n policy.Node[V])      { h.s.removeFromList(n.(*entry[V])) }
func (h shardHooks[V]) Len() int                     { return h.s.linked }
func (h shardHooks[V]) Back() policy.Node[V] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
