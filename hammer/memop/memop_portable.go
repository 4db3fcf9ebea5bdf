//go:build !arm64

package memop

import (
	"sync/atomic"
	"unsafe"
)

const portableLineSize = 64

type portableBackend struct{}

// New returns the backend for the running architecture. Without arm64 cache
// maintenance instructions, accesses are plain atomic operations and
// maintenance is a no-op, so no disturbance reaches DRAM.
func New() Backend {
	return portableBackend{}
}

func (portableBackend) Name() string {
	return "portable"
}

func (portableBackend) LineSize() uintptr {
	return portableLineSize
}

func (portableBackend) Load(addr uintptr) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(addr))) //nolint:govet
}

func (portableBackend) Store(addr uintptr, value uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(addr)), value) //nolint:govet
}

func (portableBackend) ZeroLine(addr uintptr) {
	base := addr &^ (portableLineSize - 1)
	for off := uintptr(0); off < portableLineSize; off += 8 {
		atomic.StoreUint64(Word(base+off), 0)
	}
}

func (portableBackend) Maintain(addr uintptr, op CacheOp) {}

func (portableBackend) Barrier() {}
