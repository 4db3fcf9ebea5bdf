// Package hammer repeatedly activates DRAM rows by accessing aggressor
// addresses with cache maintenance in between.
package hammer

import (
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

var (
	// ErrNoTargets is returned when a call has nothing to hammer.
	ErrNoTargets = errors.New("no hammering targets")

	// ErrInvalidTarget is returned for targets that do not point to memory
	// or are not word aligned.
	ErrInvalidTarget = errors.New("invalid hammering target")
)

// A CorruptionError reports that a target did not hold its original value
// after the restore. Hammerers panic with it because nothing measured
// afterwards could be trusted.
type CorruptionError struct {
	Target   pagemap.Address
	Expected uint64
	Actual   uint64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf(
		"hammering corrupted %s: expected 0x%x after restore, found 0x%x",
		e.Target, e.Expected, e.Actual)
}

// A Hammerer runs hammering loops on one backend.
type Hammerer struct {
	backend memop.Backend
	timing  bool
	clock   func() time.Time
}

// Backend returns the memory-op backend in use.
func (h *Hammerer) Backend() memop.Backend {
	return h.backend
}

type snapshot struct {
	value uint64
	line  []byte
}

// Hammer accesses all targets round-robin cfg.Iterations times and returns the
// duration of the loop in nanoseconds, or 0 if timing is disabled. The targets
// hold their original values when Hammer returns.
func (h *Hammerer) Hammer(
	targets []pagemap.Address,
	cfg Config,
) (uint64, error) {
	if len(targets) == 0 {
		return 0, ErrNoTargets
	}

	for _, t := range targets {
		if !t.IsValid() || t.Virtual%8 != 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidTarget, t)
		}
	}

	snaps := h.takeSnapshots(targets, cfg.Operation)
	h.preClean(targets)

	ns := h.timedLoop(targets, snaps, cfg)

	h.restore(targets, snaps)
	h.mustBeRestored(targets, snaps)

	return ns, nil
}

// Single hammers one address.
func (h *Hammerer) Single(a pagemap.Address, cfg Config) (uint64, error) {
	return h.Hammer([]pagemap.Address{a}, cfg)
}

// Double hammers two addresses in alternation.
func (h *Hammerer) Double(a, b pagemap.Address, cfg Config) (uint64, error) {
	return h.Hammer([]pagemap.Address{a, b}, cfg)
}

// Multiple hammers any number of addresses round-robin.
func (h *Hammerer) Multiple(
	targets []pagemap.Address,
	cfg Config,
) (uint64, error) {
	return h.Hammer(targets, cfg)
}

func (h *Hammerer) takeSnapshots(
	targets []pagemap.Address,
	op Operation,
) []snapshot {
	snaps := make([]snapshot, len(targets))
	lineSize := h.backend.LineSize()

	for i, t := range targets {
		snaps[i].value = *memop.Word(t.Virtual)

		if op == OpZeroFill {
			line := memop.Line(memop.LineBase(h.backend, t.Virtual), lineSize)
			snaps[i].line = append([]byte(nil), line...)
		}
	}

	return snaps
}

func (h *Hammerer) preClean(targets []pagemap.Address) {
	for _, t := range targets {
		h.backend.Maintain(t.Virtual, memop.CacheOpCleanInvalidate)
		h.backend.Barrier()
	}
}

func (h *Hammerer) timedLoop(
	targets []pagemap.Address,
	snaps []snapshot,
	cfg Config,
) uint64 {
	loop := memop.Loop{
		Targets:    make([]uintptr, len(targets)),
		Values:     make([]uint64, len(targets)),
		Iterations: cfg.Iterations,
		Access:     cfg.Operation.access(),
		CacheOp:    cfg.CacheOp,
		Barrier:    cfg.Barrier,
	}

	for i, t := range targets {
		loop.Targets[i] = t.Virtual
		loop.Values[i] = ^snaps[i].value
	}

	var start time.Time
	if h.timing {
		start = h.clock()
	}

	memop.RunLoop(h.backend, &loop)

	if !h.timing {
		return 0
	}

	return uint64(h.clock().Sub(start).Nanoseconds())
}

func (h *Hammerer) restore(targets []pagemap.Address, snaps []snapshot) {
	for i, t := range targets {
		if snaps[i].line != nil {
			base := memop.LineBase(h.backend, t.Virtual)
			copy(memop.Line(base, uintptr(len(snaps[i].line))), snaps[i].line)
		}
	}

	for i, t := range targets {
		*memop.Word(t.Virtual) = snaps[i].value
	}

	for _, t := range targets {
		h.backend.Maintain(t.Virtual, memop.CacheOpClean)
	}

	h.backend.Barrier()
}

func (h *Hammerer) mustBeRestored(
	targets []pagemap.Address,
	snaps []snapshot,
) {
	for i, t := range targets {
		actual := h.backend.Load(t.Virtual)
		if actual != snaps[i].value {
			panic(&CorruptionError{
				Target:   t,
				Expected: snaps[i].value,
				Actual:   actual,
			})
		}
	}
}
