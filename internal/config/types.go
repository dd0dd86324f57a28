package config

import "time"

// Policy names accepted by CacheConfig.Policy
const (
	PolicyLRU  = "lru"
	PolicyTwoQ = "2q"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel    string      `json:"logLevel"`
	LogFormat   string      `json:"logFormat"`   // "console" or "json"
	MetricsAddr string      `json:"metricsAddr"` // empty disables /metrics
	PprofAddr   string      `json:"pprofAddr"`   // empty disables pprof
	Cache       CacheConfig `json:"cache"`
	Retry       RetryConfig `json:"retry"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Shards     int    `json:"shards"`     // 0 means auto
	Capacity   int    `json:"capacity"`   // resolved entries, 0 means unbounded
	Policy     string `json:"policy"`     // "lru" or "2q", bounded caches only
	DefaultTTL int    `json:"defaultTTL"` // ms
}

// RetryConfig represents retry configuration
type RetryConfig struct {
	Enabled           *bool   `json:"enabled,omitempty"` // nil means enabled
	MaxAttempts       int     `json:"maxAttempts"`
	InitialDelay      int     `json:"initialDelay"`       // ms
	MaxDelay          *int    `json:"maxDelay,omitempty"` // ms, nil means default, 0 means uncapped
	BackoffMultiplier float64 `json:"backoffMultiplier"`
}

// Default values
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultCachePolicy       = PolicyLRU
	DefaultCacheTTL          = 5000 // ms
	DefaultRetryMaxAttempts  = 3
	DefaultRetryInitialDelay = 200  // ms
	DefaultRetryMaxDelay     = 2000 // ms
	DefaultBackoffMultiplier = 2.0
)

// DefaultTTLDuration returns the default entry TTL as time.Duration
func (c *CacheConfig) DefaultTTLDuration() time.Duration {
	return time.Duration(c.DefaultTTL) * time.Millisecond
}

// InitialDelayDuration returns the first retry wait as time.Duration
func (r *RetryConfig) InitialDelayDuration() time.Duration {
	return time.Duration(r.InitialDelay) * time.Millisecond
}

// MaxDelayDuration returns the retry wait cap as time.Duration
func (r *RetryConfig) MaxDelayDuration() time.Duration {
	if r.MaxDelay == nil {
		return DefaultRetryMaxDelay * time.Millisecond
	}
	return time.Duration(*r.MaxDelay) * time.Millisecond
}

// IsEnabled reports whether producers should be wrapped with retries
func (r *RetryConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}
