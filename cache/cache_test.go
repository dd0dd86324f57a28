package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/fetchcoord/policy/twoq"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

// gatedProducer blocks every call until release is closed.
type gatedProducer struct {
	calls   atomic.Int64
	release chan struct{}
	val     string
	err     error
}

func newGated(val string, err error) *gatedProducer {
	return &gatedProducer{release: make(chan struct{}), val: val, err: err}
}

func (g *gatedProducer) produce(context.Context) (string, error) {
	g.calls.Add(1)
	<-g.release
	return g.val, g.err
}

func constant(calls *atomic.Int64, v string) Producer[string] {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return v, nil
	}
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// All concurrent callers share one producer call and its value.
func TestCache_Get_SingleFlight(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	t.Cleanup(func() { _ = c.Close() })

	p := newGated("v", nil)
	const N = 32

	var g errgroup.Group
	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.Get(context.Background(), "profile:0xabc", p.produce, time.Minute)
			if err != nil {
				return err
			}
			if v != "v" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}

	waitFor(t, "all callers to attach", func() bool {
		st := c.Stats()
		return st.Misses+st.Shared == N
	})
	close(p.release)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("producer must run exactly once, got %d", got)
	}
	if st := c.Stats(); st.Misses != 1 || st.Shared != N-1 {
		t.Fatalf("want 1 miss and %d shared, got %+v", N-1, st)
	}
}

// A failure reaches every attached caller and is not cached.
func TestCache_Get_SharedFailureNotCached(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	t.Cleanup(func() { _ = c.Close() })

	boom := errors.New("talent api: 502")
	p := newGated("", boom)
	const N = 8

	var g errgroup.Group
	for i := 0; i < N; i++ {
		g.Go(func() error {
			_, err := c.Get(context.Background(), "score:0x1", p.produce, time.Minute)
			if !errors.Is(err, boom) {
				return fmt.Errorf("want boom, got %v", err)
			}
			return nil
		})
	}
	waitFor(t, "all callers to attach", func() bool {
		st := c.Stats()
		return st.Misses+st.Shared == N
	})
	close(p.release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("producer must run once, got %d", got)
	}
	if c.Len() != 0 {
		t.Fatalf("failed entry must be dropped, Len=%d", c.Len())
	}

	var calls atomic.Int64
	v, err := c.Get(context.Background(), "score:0x1", constant(&calls, "ok"), time.Minute)
	if err != nil || v != "ok" || calls.Load() != 1 {
		t.Fatalf("next Get must call producer again: v=%q err=%v calls=%d", v, err, calls.Load())
	}
}

// Values are served while age < ttl and reloaded once age >= ttl.
func TestCache_Get_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New[string](Options[string]{Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	var calls atomic.Int64
	p := constant(&calls, "v")
	ctx := context.Background()

	if _, err := c.Get(ctx, "k", p, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	clk.add(99 * time.Millisecond)
	if _, err := c.Get(ctx, "k", p, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("fresh entry must be served from cache, calls=%d", calls.Load())
	}

	clk.add(time.Millisecond) // age == ttl
	if _, err := c.Get(ctx, "k", p, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("entry at age == ttl must reload, calls=%d", calls.Load())
	}
}

func TestCache_Get_ZeroTTLAlwaysRevalidates(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{Clock: &fakeClock{}})
	var calls atomic.Int64

	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), "k", constant(&calls, "v"), 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Get(context.Background(), "k", constant(&calls, "v"), -time.Second); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 4 {
		t.Fatalf("ttl 0 must always call producer, calls=%d", calls.Load())
	}
}

// The ttl is fixed by the Get that started the load.
func TestCache_Get_TTLIsPerEntry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New[string](Options[string]{Clock: clk})
	var calls atomic.Int64
	ctx := context.Background()

	_, _ = c.Get(ctx, "k", constant(&calls, "v"), 10*time.Second)
	clk.add(5 * time.Second)
	_, _ = c.Get(ctx, "k", constant(&calls, "v"), time.Second)

	if calls.Load() != 1 {
		t.Fatalf("shorter ttl on a later Get must not force a reload, calls=%d", calls.Load())
	}
}

func TestCache_Invalidate_ForcesReload(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	var calls atomic.Int64
	ctx := context.Background()

	_, _ = c.Get(ctx, "k", constant(&calls, "v"), time.Hour)
	if !c.Invalidate("k") {
		t.Fatal("Invalidate must report the existing entry")
	}
	if c.Invalidate("k") {
		t.Fatal("second Invalidate must report nothing removed")
	}
	_, _ = c.Get(ctx, "k", constant(&calls, "v"), time.Hour)

	if calls.Load() != 2 {
		t.Fatalf("Get after Invalidate must call producer, calls=%d", calls.Load())
	}
}

// Invalidating a pending key does not cancel the call, but its result is not stored.
func TestCache_Invalidate_PendingResultDiscarded(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	p := newGated("old", nil)

	done := make(chan string, 1)
	go func() {
		v, _ := c.Get(context.Background(), "k", p.produce, time.Hour)
		done <- v
	}()
	waitFor(t, "producer start", func() bool { return p.calls.Load() == 1 })

	if !c.Invalidate("k") {
		t.Fatal("pending entry must be removable")
	}
	close(p.release)

	if v := <-done; v != "old" {
		t.Fatalf("waiter must still receive the result, got %q", v)
	}
	if _, ok := c.Peek("k"); ok {
		t.Fatal("result of an invalidated call must not be stored")
	}
	if st := c.Stats(); st.Discarded != 1 {
		t.Fatalf("want 1 discarded result, got %+v", st)
	}

	var calls atomic.Int64
	if v, _ := c.Get(context.Background(), "k", constant(&calls, "new"), time.Hour); v != "new" || calls.Load() != 1 {
		t.Fatalf("Get after invalidation must produce again, got %q calls=%d", v, calls.Load())
	}
}

// A call invalidated while pending must not overwrite its replacement.
func TestCache_Invalidate_StaleCallDoesNotClobberReplacement(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	first := newGated("first", nil)
	second := newGated("second", nil)

	go func() { _, _ = c.Get(context.Background(), "k", first.produce, time.Hour) }()
	waitFor(t, "first producer", func() bool { return first.calls.Load() == 1 })
	c.Invalidate("k")

	res := make(chan string, 1)
	go func() {
		v, _ := c.Get(context.Background(), "k", second.produce, time.Hour)
		res <- v
	}()
	waitFor(t, "second producer", func() bool { return second.calls.Load() == 1 })

	close(first.release)
	waitFor(t, "first call to be discarded", func() bool { return c.Stats().Discarded == 1 })
	close(second.release)

	if v := <-res; v != "second" {
		t.Fatalf("got %q", v)
	}
	if v, ok := c.Peek("k"); !ok || v != "second" {
		t.Fatalf("replacement must be stored, got %q ok=%v", v, ok)
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{Shards: 4})
	var calls atomic.Int64
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = c.Get(ctx, fmt.Sprintf("leaderboard:%d:25", i), constant(&calls, "page"), time.Hour)
	}
	if c.Len() != 10 {
		t.Fatalf("want 10 entries, got %d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Clear must empty the cache, Len=%d", c.Len())
	}
	_, _ = c.Get(ctx, "leaderboard:0:25", constant(&calls, "page"), time.Hour)
	if calls.Load() != 11 {
		t.Fatalf("Get after Clear must produce, calls=%d", calls.Load())
	}
}

// A caller giving up neither cancels the producer nor prevents the store.
func TestCache_Get_CallerAbandonsCallCompletes(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	release := make(chan struct{})
	var producerCtxErr atomic.Value

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", func(pctx context.Context) (string, error) {
			<-release
			producerCtxErr.Store(fmt.Sprint(pctx.Err()))
			return "v", nil
		}, time.Hour)
		res <- err
	}()

	waitFor(t, "pending entry", func() bool { return c.Len() == 1 })
	cancel()
	if err := <-res; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoning caller must see context.Canceled, got %v", err)
	}

	close(release)
	waitFor(t, "value stored", func() bool { _, ok := c.Peek("k"); return ok })
	if got := producerCtxErr.Load(); got != "<nil>" {
		t.Fatalf("producer context must not be cancelled, got %v", got)
	}
}

func TestCache_Get_ProducerPanicIsError(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	_, err := c.Get(context.Background(), "k", func(context.Context) (string, error) {
		panic("nil profile")
	}, time.Hour)

	if !errors.Is(err, ErrProducerPanic) {
		t.Fatalf("want ErrProducerPanic, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("panicking producer must not leave an entry")
	}
}

func TestCache_Get_Misuse(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{})
	if _, err := c.Get(context.Background(), "k", nil, time.Second); !errors.Is(err, ErrNilProducer) {
		t.Fatalf("want ErrNilProducer, got %v", err)
	}

	_ = c.Close()
	var calls atomic.Int64
	if _, err := c.Get(context.Background(), "k", constant(&calls, "v"), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("closed cache must not call producers")
	}
}

// Three concurrent profile fetches share one call; a fetch after the ttl reloads.
func TestCache_ProfileScenario(t *testing.T) {
	t.Parallel()

	type profile struct{ Score int }

	clk := &fakeClock{}
	c := New[profile](Options[profile]{Clock: clk})
	var calls atomic.Int64
	release := make(chan struct{})
	fetchProfile := func(context.Context) (profile, error) {
		calls.Add(1)
		<-release
		return profile{Score: 42}, nil
	}

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			p, err := c.Get(context.Background(), "profile:0xabc", fetchProfile, 5*time.Second)
			if err == nil && p.Score != 42 {
				err = fmt.Errorf("score %d", p.Score)
			}
			return err
		})
	}
	waitFor(t, "three callers", func() bool {
		st := c.Stats()
		return st.Misses+st.Shared == 3
	})
	clk.add(200 * time.Millisecond)
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("want one fetch, got %d", calls.Load())
	}

	clk.add(6 * time.Second)
	if _, err := c.Get(context.Background(), "profile:0xabc", fetchProfile, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("fetch after ttl must reload, got %d", calls.Load())
	}
}

// Bounded mode: LRU order decides the victim, and pending entries are not counted.
func TestCache_Capacity_LRU(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := New[string](Options[string]{
		Shards:   1,
		Capacity: 2,
		OnEvict: func(k, _ string, reason EvictReason) {
			if reason != EvictCapacity {
				t.Errorf("want EvictCapacity, got %v", reason)
			}
			evicted = append(evicted, k)
		},
	})
	var calls atomic.Int64
	ctx := context.Background()
	get := func(k string) { _, _ = c.Get(ctx, k, constant(&calls, k), time.Hour) }

	get("a")
	get("b")
	get("a") // promote a
	get("c") // evicts b

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("want b evicted, got %v", evicted)
	}
	if _, ok := c.Peek("a"); !ok {
		t.Fatal("a must survive")
	}
	if st := c.Stats(); st.Evictions != 1 || st.Entries != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestCache_Capacity_PendingNeverEvicted(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{Shards: 1, Capacity: 1})
	var calls atomic.Int64
	ctx := context.Background()

	p := newGated("slow", nil)
	res := make(chan string, 1)
	go func() {
		v, _ := c.Get(ctx, "pending", p.produce, time.Hour)
		res <- v
	}()
	waitFor(t, "pending producer", func() bool { return p.calls.Load() == 1 })

	_, _ = c.Get(ctx, "a", constant(&calls, "a"), time.Hour)
	_, _ = c.Get(ctx, "b", constant(&calls, "b"), time.Hour) // evicts a, not the pending key

	if c.Len() != 2 {
		t.Fatalf("want pending + b resident, got %d", c.Len())
	}
	close(p.release)
	<-res
	if _, ok := c.Peek("pending"); !ok {
		t.Fatal("resolved pending key must be stored")
	}
	if _, ok := c.Peek("b"); ok {
		t.Fatal("b must make room for the newly resolved key")
	}
}

func TestCache_Capacity_TwoQ(t *testing.T) {
	t.Parallel()

	c := New[string](Options[string]{
		Shards:   1,
		Capacity: 8,
		Policy:   twoq.New[string](1, 4),
	})
	var calls atomic.Int64
	ctx := context.Background()
	get := func(k string) { _, _ = c.Get(ctx, k, constant(&calls, k), time.Hour) }

	get("hot")
	get("hot") // promoted out of probation
	get("scan1")
	get("scan2") // probation overflow drops scan1

	if _, ok := c.Peek("scan1"); ok {
		t.Fatal("scan1 must be dropped from probation")
	}
	if _, ok := c.Peek("hot"); !ok {
		t.Fatal("hot key must survive the scan")
	}
}

// Peek never produces and never counts; Len includes pending entries.
func TestCache_PeekLenStats(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New[string](Options[string]{Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	if _, ok := c.Peek("a"); ok {
		t.Fatal("Peek on empty cache must miss")
	}

	g := newGated("slow", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "b", g.produce, time.Second)
	}()
	waitFor(t, "pending entry", func() bool { return c.Len() == 1 })
	if _, ok := c.Peek("b"); ok {
		t.Fatal("Peek must not return a pending entry")
	}
	close(g.release)
	<-done

	var calls atomic.Int64
	if _, err := c.Get(context.Background(), "a", constant(&calls, "va"), time.Second); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Peek("a"); !ok || v != "va" {
		t.Fatalf("Peek = %q,%v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	clk.add(time.Second)
	if _, ok := c.Peek("a"); ok {
		t.Fatal("Peek must not return a stale value")
	}

	st := c.Stats()
	if st.Hits != 0 || st.Misses != 2 || st.Entries != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
