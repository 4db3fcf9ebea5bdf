package memop

import "sync"

func loadFenced(addr uintptr) uint64

func storeFenced(addr uintptr, value uint64)

func zeroBlock(addr uintptr)

func cleanLine(addr uintptr)

func cleanInvalidateLine(addr uintptr)

func dataSyncBarrier()

func readZeroBlockID() uint64

func hammerLoop(targets *uintptr, values *uint64, n, iterations, mode uint64)

const zeroProhibited = 1 << 4

type arm64Backend struct {
	lineSize   uintptr
	zeroByWord bool
}

var (
	arm64Once sync.Once
	arm64Inst *arm64Backend
)

// New returns the backend for the running architecture. On arm64 it issues
// DC CVAC, DC CIVAC, DC ZVA, DSB SY and DMB SY directly.
func New() Backend {
	arm64Once.Do(func() {
		id := readZeroBlockID()
		arm64Inst = &arm64Backend{
			lineSize:   4 << (id & 0xf),
			zeroByWord: id&zeroProhibited != 0,
		}
	})

	return arm64Inst
}

func (b *arm64Backend) Name() string {
	return "arm64"
}

func (b *arm64Backend) LineSize() uintptr {
	return b.lineSize
}

func (b *arm64Backend) Load(addr uintptr) uint64 {
	return loadFenced(addr)
}

func (b *arm64Backend) Store(addr uintptr, value uint64) {
	storeFenced(addr, value)
}

func (b *arm64Backend) ZeroLine(addr uintptr) {
	if !b.zeroByWord {
		zeroBlock(addr)
		return
	}

	base := addr &^ (b.lineSize - 1)
	for off := uintptr(0); off < b.lineSize; off += 8 {
		storeFenced(base+off, 0)
	}
}

func (b *arm64Backend) Maintain(addr uintptr, op CacheOp) {
	switch op {
	case CacheOpClean:
		cleanLine(addr)
	case CacheOpCleanInvalidate:
		cleanInvalidateLine(addr)
	}
}

func (b *arm64Backend) Barrier() {
	dataSyncBarrier()
}

func (b *arm64Backend) RunLoop(l *Loop) {
	mustBeRunnable(l)

	if len(l.Targets) == 0 || l.Iterations == 0 {
		return
	}

	if l.Access == AccessZero && b.zeroByWord {
		runLoop(b, l)
		return
	}

	hammerLoop(&l.Targets[0], &l.Values[0], uint64(len(l.Targets)),
		l.Iterations, l.mode())
}
