// Package pattern chooses the aggressor addresses that are hammered together.
package pattern

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sarchlab/hammerbed/dram/rownav"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

// ErrNoNeighbor is returned when a pattern cannot be placed around the chosen
// address. The caller should pick another address.
var ErrNoNeighbor = errors.New("no usable neighbor row")

// A Result describes one executed pattern.
type Result struct {
	// Nanoseconds is the duration of the hammering loop, 0 if timing is
	// disabled.
	Nanoseconds uint64

	// Sides is the number of addresses hammered together.
	Sides int

	// Aggressors are the hammered addresses.
	Aggressors []pagemap.Address
}

// PerAccess returns the average duration of one access to one aggressor.
func (r Result) PerAccess(iterations uint64) uint64 {
	if iterations == 0 || r.Sides == 0 {
		return 0
	}

	return r.Nanoseconds / uint64(r.Sides) / iterations
}

// A Generator places patterns inside one buffer.
type Generator struct {
	hammerer      *hammer.Hammerer
	navigator     *rownav.Navigator
	translator    pagemap.Translator
	base          uintptr
	size          uint64
	rng           *rand.Rand
	config        hammer.Config
	sides         int
	decoyAttempts int
}

// Config returns the hammering configuration applied to every pattern.
func (g *Generator) Config() hammer.Config {
	return g.config
}

// Sides returns the number of aggressors of the many-sided pattern.
func (g *Generator) Sides() int {
	return g.sides
}

// RandomAddress picks a word-aligned address inside the buffer.
func (g *Generator) RandomAddress() (pagemap.Address, error) {
	va := g.base + uintptr(g.rng.Int63n(int64(g.size)))&^7
	return pagemap.Resolve(g.translator, va)
}

// Run executes the pattern of the given kind around the aggressor.
func (g *Generator) Run(kind Kind, a pagemap.Address) (Result, error) {
	switch kind {
	case Single:
		return g.Single(a)
	case Decoy:
		return g.Decoy(a)
	case Double:
		return g.Double(a)
	case Quad:
		return g.Quad(a)
	case ManySided:
		return g.ManySided(a, g.sides)
	default:
		return Result{}, fmt.Errorf("unknown pattern kind %d", kind)
	}
}

func (g *Generator) hammer(targets ...pagemap.Address) (Result, error) {
	ns, err := g.hammerer.Hammer(targets, g.config)
	if err != nil {
		return Result{}, fmt.Errorf("hammering %d aggressors: %w",
			len(targets), err)
	}

	return Result{
		Nanoseconds: ns,
		Sides:       len(targets),
		Aggressors:  targets,
	}, nil
}

// Single hammers the address on its own.
func (g *Generator) Single(a pagemap.Address) (Result, error) {
	return g.hammer(a)
}

// Decoy hammers the address together with a random address that is not in
// the same row.
func (g *Generator) Decoy(a pagemap.Address) (Result, error) {
	for i := 0; i < g.decoyAttempts; i++ {
		decoy, err := g.RandomAddress()
		if err != nil {
			return Result{}, err
		}

		if g.navigator.IsPossiblySameRow(a, decoy) {
			continue
		}

		return g.hammer(a, decoy)
	}

	return Result{}, fmt.Errorf("%w: no decoy outside the row of %s",
		ErrNoNeighbor, a)
}

// Double hammers the rows directly above and below the address.
func (g *Generator) Double(a pagemap.Address) (Result, error) {
	above, ok := g.navigator.NextRowDeterministic(a)
	if !ok {
		return Result{}, ErrNoNeighbor
	}

	below, ok := g.navigator.PrevRowDeterministic(a)
	if !ok {
		return Result{}, ErrNoNeighbor
	}

	return g.hammer(above, below)
}

// Quad hammers the rows two steps above and below the address. All rows from
// -2 to +2 must share the bank and channel of the address, and the outer rows
// must be inside the buffer.
func (g *Generator) Quad(a pagemap.Address) (Result, error) {
	nearAbove, ok1 := g.navigator.NextRowDeterministic(a)
	nearBelow, ok2 := g.navigator.PrevRowDeterministic(a)
	if !ok1 || !ok2 {
		return Result{}, ErrNoNeighbor
	}

	farAbove, ok1 := g.navigator.NextRowDeterministic(nearAbove)
	farBelow, ok2 := g.navigator.PrevRowDeterministic(nearBelow)
	if !ok1 || !ok2 {
		return Result{}, ErrNoNeighbor
	}

	geo := g.navigator.Geometry()
	for _, n := range []pagemap.Address{nearAbove, nearBelow, farAbove, farBelow} {
		if !geo.SameBankAndChannel(n.Physical, a.Physical) {
			return Result{}, ErrNoNeighbor
		}
	}

	if !g.inBuffer(farAbove) || !g.inBuffer(farBelow) {
		return Result{}, ErrNoNeighbor
	}

	return g.hammer(farAbove, farBelow)
}

func (g *Generator) inBuffer(a pagemap.Address) bool {
	return a.Virtual >= g.base && uint64(a.Virtual-g.base) < g.size
}

// ManySided hammers sides rows around the address. The sequence starts at
// the address and the row above it, then alternates jumps of two rows down
// and up from the entry two positions back, which spreads the aggressors
// over rows 0, +1, -2, +3, -4 and so on. Every aggressor must share the bank,
// channel, column and subpartition of the address.
func (g *Generator) ManySided(a pagemap.Address, sides int) (Result, error) {
	if sides < 2 {
		return Result{}, fmt.Errorf("many-sided pattern needs at least 2 sides, got %d",
			sides)
	}

	geo := g.navigator.Geometry()
	origin := geo.Locate(a.Physical)
	seq := make([]pagemap.Address, 1, sides)
	seq[0] = a

	for len(seq) < sides {
		var (
			next pagemap.Address
			ok   bool
		)

		k := len(seq)
		switch {
		case k == 1:
			next, ok = g.navigator.NextRowDeterministic(a)
		case k%2 == 0:
			next, ok = g.navigator.Step(seq[k-2], -2)
		default:
			next, ok = g.navigator.Step(seq[k-2], 2)
		}

		if !ok {
			return Result{}, ErrNoNeighbor
		}

		loc := geo.Locate(next.Physical)
		if loc.Bank != origin.Bank || loc.Channel != origin.Channel ||
			loc.Column != origin.Column ||
			loc.Subpartition != origin.Subpartition {
			return Result{}, ErrNoNeighbor
		}

		seq = append(seq, next)
	}

	return g.hammer(seq...)
}
