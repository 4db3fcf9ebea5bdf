package memop

import "fmt"

// Access is the memory operation of a hammering loop.
type Access int

// The accesses.
const (
	AccessLoad Access = iota
	AccessStore
	AccessZero
)

// A Loop is a batch of hammering rounds. In each round every target gets the
// cache operation, then the optional barrier, then the access. A store writes
// Values[i] to Targets[i].
type Loop struct {
	Targets    []uintptr
	Values     []uint64
	Iterations uint64
	Access     Access
	CacheOp    CacheOp
	Barrier    bool
}

// A Looper runs whole loops without a call per access.
type Looper interface {
	RunLoop(l *Loop)
}

// RunLoop runs the loop on the backend. Backends that are Loopers run it in
// one call; the others get one call per operation.
func RunLoop(b Backend, l *Loop) {
	mustBeRunnable(l)

	if lp, ok := b.(Looper); ok {
		lp.RunLoop(l)
		return
	}

	runLoop(b, l)
}

func mustBeRunnable(l *Loop) {
	if l.Access < AccessLoad || l.Access > AccessZero {
		panic(fmt.Sprintf("unknown loop access %d", l.Access))
	}

	if l.CacheOp < CacheOpNone || l.CacheOp > CacheOpCleanInvalidate {
		panic(fmt.Sprintf("unknown loop cache operation %d", l.CacheOp))
	}

	if len(l.Values) != len(l.Targets) {
		panic(fmt.Sprintf("loop has %d targets but %d values",
			len(l.Targets), len(l.Values)))
	}
}

func runLoop(b Backend, l *Loop) {
	for i := uint64(0); i < l.Iterations; i++ {
		if l.CacheOp != CacheOpNone {
			for _, t := range l.Targets {
				b.Maintain(t, l.CacheOp)
			}
		}

		if l.Barrier {
			b.Barrier()
		}

		for j, t := range l.Targets {
			switch l.Access {
			case AccessLoad:
				b.Load(t)
			case AccessStore:
				b.Store(t, l.Values[j])
			case AccessZero:
				b.ZeroLine(t)
			}
		}
	}
}

// mode packs the loop settings for the assembly loop: bits 0-1 hold the cache
// operation, bit 2 the barrier and bits 3-4 the access.
func (l *Loop) mode() uint64 {
	m := uint64(l.CacheOp) & 3
	if l.Barrier {
		m |= 4
	}

	return m | uint64(l.Access)<<3
}
