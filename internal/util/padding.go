package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for most modern CPUs.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields into distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Counter is an atomic uint64 padded to one cache line so that per-shard
// counters touched by different goroutines do not share a line.
type Counter struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
