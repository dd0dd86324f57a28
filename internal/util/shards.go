// Package util contains internal helpers for shard selection and counters.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"runtime"

	"github.com/cespare/xxhash/v2"
)

// MaxShards caps the automatic and explicit shard counts.
const MaxShards = 256

// HashKey returns the 64-bit xxhash of a cache key.
func HashKey(key string) uint64 { return xxhash.Sum64String(key) }

// NextPow2 returns the smallest power of two >= x (x == 0 -> 1).
// Values above 1<<63 are clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}

// ShardCount normalises a requested shard count.
// n <= 0 picks nextPow2(2*GOMAXPROCS); any result is a power of two in [1..MaxShards].
func ShardCount(n int) int {
	if n <= 0 {
		n = 2 * runtime.GOMAXPROCS(0)
	}
	if n > MaxShards {
		n = MaxShards
	}
	return int(NextPow2(uint64(n)))
}

// ShardIndex maps a hash to a shard slot. shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
