// Command bench runs a synthetic fetch workload through the coordinator and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/fetchcoord/cache"
	"github.com/IvanBrykalov/fetchcoord/fetch"
	"github.com/IvanBrykalov/fetchcoord/internal/config"
	"github.com/IvanBrykalov/fetchcoord/internal/logging"
	pmet "github.com/IvanBrykalov/fetchcoord/metrics/prom"
	"github.com/IvanBrykalov/fetchcoord/retry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// profile is the cached value type for the workload.
type profile struct {
	Address string
	Score   int
}

var errUpstream = errors.New("upstream: 503 service unavailable")

func main() {
	// ---- Flags ----
	var (
		configPath = flag.String("config", "", "path to JSON config (empty = defaults)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		ttl      = flag.Duration("ttl", 0, "entry ttl (0 = config defaultTTL)")

		keys    = flag.Int("keys", 100_000, "number of distinct builder addresses")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		latency = flag.Duration("latency", 2*time.Millisecond, "simulated upstream latency")
		failPct = flag.Int("fail", 10, "simulated upstream failure percentage [0..100]")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.PprofAddr != "" {
		go func() {
			log.Info().Str("addr", cfg.PprofAddr).Msg("pprof: serving")
			log.Error().Err(http.ListenAndServe(cfg.PprofAddr, nil)).Msg("pprof: stopped")
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "fetchcoord", "bench", nil)
	if cfg.MetricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics: serving")
			log.Error().Err(http.ListenAndServe(cfg.MetricsAddr, nil)).Msg("metrics: stopped")
		}()
	}

	// ---- Build coordinator ----
	opt := config.CacheOptions[profile](cfg)
	opt.Metrics = metrics
	opt.Logger = &log
	c := cache.New[profile](opt)
	defer func() { _ = c.Close() }()

	var exec *retry.Executor
	if cfg.Retry.IsEnabled() {
		exec = retry.NewExecutor(cfg.RetryPolicy(), retry.WithMetrics(metrics), retry.WithLogger(log))
	}
	coord := fetch.New[profile](c, exec, fetch.WithLogger(log))

	entryTTL := *ttl
	if entryTTL == 0 {
		entryTTL = cfg.Cache.DefaultTTLDuration()
	}

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(max(*keys, 1) - 1)
	seedBase := *seed
	failPctVal := *failPct
	latencyVal := *latency
	workersN := max(*workers, 1)

	// ---- Load generation ----
	var gets, failed, upstreamCalls atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for gctx.Err() == nil {
				n := localZipf.Uint64()
				addr := "0x" + strconv.FormatUint(n, 16)
				fail := int(localR.Int31n(100)) < failPctVal

				gets.Add(1)
				_, err := coord.Fetch(gctx, fetch.ProfileKey(addr), entryTTL, func(ctx context.Context) (profile, error) {
					upstreamCalls.Add(1)
					select {
					case <-time.After(latencyVal):
					case <-ctx.Done():
						return profile{}, ctx.Err()
					}
					if fail {
						return profile{}, errUpstream
					}
					return profile{Address: addr, Score: int(n % 100)}, nil
				})
				if err != nil && gctx.Err() == nil {
					failed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	st := c.Stats()
	getsN := gets.Load()
	hitRate := 0.0
	if getsN > 0 {
		hitRate = float64(st.Hits) / float64(getsN) * 100
	}

	fmt.Printf("policy=%s cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d retry=%v\n",
		cfg.Cache.Policy, cfg.Cache.Capacity, cfg.Cache.Shards, workersN, *keys, elapsed, seedBase, exec != nil)
	fmt.Printf("gets=%d (%.0f gets/s)  upstream calls=%d  failed gets=%d\n",
		getsN, float64(getsN)/elapsed.Seconds(), upstreamCalls.Load(), failed.Load())
	fmt.Printf("hits=%d  misses=%d  shared=%d  hit-rate=%.2f%%\n", st.Hits, st.Misses, st.Shared, hitRate)
	fmt.Printf("load errors=%d  discarded=%d  evictions=%d  Len()=%d\n",
		st.LoadErrors, st.Discarded, st.Evictions, c.Len())
}
