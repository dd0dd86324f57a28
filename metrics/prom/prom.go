// Package prom exports cache and retry signals as Prometheus metrics.
package prom

import (
	"time"

	"github.com/IvanBrykalov/fetchcoord/cache"
	"github.com/IvanBrykalov/fetchcoord/retry"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and retry.Metrics.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	shared     prometheus.Counter
	loadErrors prometheus.Counter
	evicts     *prometheus.CounterVec
	entries    prometheus.Gauge

	attempts  prometheus.Counter
	retries   prometheus.Counter
	exhausted prometheus.Counter
	delays    prometheus.Histogram
}

// New constructs and registers the adapter.
//   - reg:         registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:       counter("cache_hits_total", "Fresh values served without a producer call"),
		misses:     counter("cache_misses_total", "Producer calls started"),
		shared:     counter("cache_shared_total", "Gets that attached to an in-flight producer call"),
		loadErrors: counter("cache_load_errors_total", "Producer calls that failed"),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "cache_evictions_total",
			Help: "Resolved entries dropped to respect capacity, by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "cache_entries",
			Help: "Resident entries, pending ones included", ConstLabels: constLabels,
		}),
		attempts:  counter("retry_attempts_total", "Operation attempts made by the retry executor"),
		retries:   counter("retry_retries_total", "Failed attempts that were retried"),
		exhausted: counter("retry_exhausted_total", "Operations that failed after the last permitted attempt"),
		delays: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "retry_delay_seconds",
			Help:        "Backoff delay before a retry",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 10),
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(
		a.hits, a.misses, a.shared, a.loadErrors, a.evicts, a.entries,
		a.attempts, a.retries, a.exhausted, a.delays,
	)
	return a
}

func (a *Adapter) Hit()       { a.hits.Inc() }
func (a *Adapter) Miss()      { a.misses.Inc() }
func (a *Adapter) Shared()    { a.shared.Inc() }
func (a *Adapter) LoadError() { a.loadErrors.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// Size sets the resident entries gauge.
func (a *Adapter) Size(entries int) { a.entries.Set(float64(entries)) }

func (a *Adapter) Attempt()   { a.attempts.Inc() }
func (a *Adapter) Exhausted() { a.exhausted.Inc() }

// Retry counts a retry and observes its delay.
func (a *Adapter) Retry(delay time.Duration) {
	a.retries.Inc()
	a.delays.Observe(delay.Seconds())
}

var (
	_ cache.Metrics = (*Adapter)(nil)
	_ retry.Metrics = (*Adapter)(nil)
)
