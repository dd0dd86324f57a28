// Package config loads the JSON configuration used by the fetchcoord tools
// and turns it into cache options and a retry policy.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/IvanBrykalov/fetchcoord/cache"
	"github.com/IvanBrykalov/fetchcoord/internal/util"
	"github.com/IvanBrykalov/fetchcoord/policy"
	"github.com/IvanBrykalov/fetchcoord/policy/lru"
	"github.com/IvanBrykalov/fetchcoord/policy/twoq"
	"github.com/IvanBrykalov/fetchcoord/retry"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes data, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.Cache.Policy == "" {
		cfg.Cache.Policy = DefaultCachePolicy
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = DefaultCacheTTL
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = DefaultRetryInitialDelay
	}
	// An explicit maxDelay of 0 is kept: it means uncapped.
	if cfg.Retry.MaxDelay == nil {
		d := DefaultRetryMaxDelay
		cfg.Retry.MaxDelay = &d
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry.BackoffMultiplier = DefaultBackoffMultiplier
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return fmt.Errorf("logFormat must be 'console' or 'json'")
	}

	if cfg.Cache.Shards < 0 {
		return fmt.Errorf("cache.shards must be non-negative")
	}
	if cfg.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must be non-negative")
	}
	if cfg.Cache.Policy != PolicyLRU && cfg.Cache.Policy != PolicyTwoQ {
		return fmt.Errorf("cache.policy must be '%s' or '%s'", PolicyLRU, PolicyTwoQ)
	}
	if cfg.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache.defaultTTL must be non-negative")
	}

	if err := cfg.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	return nil
}

// RetryPolicy builds the retry policy described by the configuration.
// The predicate is left nil, which retries every error.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialDelay:      c.Retry.InitialDelayDuration(),
		MaxDelay:          c.Retry.MaxDelayDuration(),
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}
}

// CacheOptions builds cache options for value type V. Metrics, logger and
// eviction callback are left for the caller to fill in.
func CacheOptions[V any](c *Config) cache.Options[V] {
	opt := cache.Options[V]{
		Shards:   c.Cache.Shards,
		Capacity: c.Cache.Capacity,
	}
	if c.Cache.Capacity > 0 {
		opt.Policy = policyFor[V](c.Cache.Policy, c.Cache.Capacity, opt.Shards)
	}
	return opt
}

// policyFor maps a policy name onto a policy. 2Q sizes its probation queue
// at a quarter of each shard's share and remembers twice that many ghosts.
// The share is split over the shard count cache.New will actually use.
func policyFor[V any](name string, capacity, shards int) policy.Policy[V] {
	if name != PolicyTwoQ {
		return lru.New[V]()
	}
	n := util.ShardCount(shards)
	perShard := max((capacity+n-1)/n, 1)
	probation := max(perShard/4, 1)
	return twoq.New[V](probation, 2*probation)
}
