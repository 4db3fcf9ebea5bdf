// Package memop provides the raw memory operations used by the hammering
// loops. Each architecture supplies its own Backend.
package memop

import (
	"strings"
	"unsafe"

	"k8s.io/klog/v2"
)

// CacheOp selects the cache maintenance issued before each access.
type CacheOp int

// The cache maintenance operations.
const (
	CacheOpNone CacheOp = iota
	CacheOpClean
	CacheOpCleanInvalidate
)

func (op CacheOp) String() string {
	switch op {
	case CacheOpNone:
		return "none"
	case CacheOpClean:
		return "cvac"
	case CacheOpCleanInvalidate:
		return "civac"
	default:
		return "unknown"
	}
}

// DefaultCacheOp is used when a cache operation name is not recognized.
const DefaultCacheOp = CacheOpCleanInvalidate

// ParseCacheOp converts a name into a cache operation. Unknown names fall back
// to DefaultCacheOp with a warning.
func ParseCacheOp(name string) CacheOp {
	switch strings.ToLower(name) {
	case "", "none":
		return CacheOpNone
	case "cvac", "clean":
		return CacheOpClean
	case "civac", "clean-invalidate":
		return CacheOpCleanInvalidate
	}

	klog.Warningf("unknown cache operation %q, falling back to %s",
		name, DefaultCacheOp)

	return DefaultCacheOp
}

// A Backend issues single memory operations. All addresses must point to
// 8-byte aligned words in memory that is not managed by the Go runtime.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// LineSize returns the size of the block cleared by ZeroLine.
	LineSize() uintptr

	// Load reads the word at addr between two full barriers.
	Load(addr uintptr) uint64

	// Store writes the word at addr between two full barriers.
	Store(addr uintptr, value uint64)

	// ZeroLine zeroes the cache line that contains addr.
	ZeroLine(addr uintptr)

	// Maintain applies the cache maintenance operation to the line that
	// contains addr.
	Maintain(addr uintptr, op CacheOp)

	// Barrier issues a full system data synchronization barrier.
	Barrier()
}

// LineBase returns the address of the first byte of the line that contains
// addr.
func LineBase(b Backend, addr uintptr) uintptr {
	return addr &^ (b.LineSize() - 1)
}

// Word gives direct access to the word at addr. It bypasses the backend and is
// meant for snapshots and restores.
func Word(addr uintptr) *uint64 {
	return (*uint64)(unsafe.Pointer(addr)) //nolint:govet
}

// Line returns the bytes of the line of the given size that starts at base.
func Line(base, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size) //nolint:govet
}
