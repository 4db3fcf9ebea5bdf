// Package rownav finds the addresses of neighboring DRAM rows inside a test
// buffer.
package rownav

import (
	"github.com/sarchlab/hammerbed/dram/geometry"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

// A ReverseLookup finds the virtual address that maps to a physical address.
type ReverseLookup interface {
	LookupVirtual(pa uint64) (uintptr, bool)
}

// Navigator moves between rows. A neighbor is only usable if the buffer owns
// the page that backs it, so every candidate is reverse translated.
type Navigator struct {
	geometry *geometry.Geometry
	lookup   ReverseLookup
}

// NewNavigator creates a navigator over the pages known to lookup.
func NewNavigator(g *geometry.Geometry, lookup ReverseLookup) *Navigator {
	return &Navigator{
		geometry: g,
		lookup:   lookup,
	}
}

// Geometry returns the geometry used to decode addresses.
func (n *Navigator) Geometry() *geometry.Geometry {
	return n.geometry
}

func (n *Navigator) nextRowIndex(row uint64) uint64 {
	if row >= n.geometry.RowMax() {
		return 0
	}

	return row + 1
}

func (n *Navigator) prevRowIndex(row uint64) uint64 {
	if row == 0 {
		return n.geometry.RowMax()
	}

	return row - 1
}

func (n *Navigator) resolve(pa uint64) (pagemap.Address, bool) {
	va, ok := n.lookup.LookupVirtual(pa)
	if !ok {
		return pagemap.Address{}, false
	}

	return pagemap.Address{Virtual: va, Physical: pa}, true
}

func (n *Navigator) withRow(a pagemap.Address, row uint64) (pagemap.Address, bool) {
	return n.resolve(n.geometry.ComposeRow(a.Physical, row))
}

// NextRow returns the address one row above a. The result may sit in another
// bank when the controller hashes row bits into the bank index.
func (n *Navigator) NextRow(a pagemap.Address) (pagemap.Address, bool) {
	row := n.geometry.Row(a.Physical)
	return n.withRow(a, n.nextRowIndex(row))
}

// PrevRow returns the address one row below a. The same caveat as NextRow
// applies.
func (n *Navigator) PrevRow(a pagemap.Address) (pagemap.Address, bool) {
	row := n.geometry.Row(a.Physical)
	return n.withRow(a, n.prevRowIndex(row))
}

// NextRowDeterministic returns an address in the row above a that decodes to
// the same bank and channel as a.
func (n *Navigator) NextRowDeterministic(
	a pagemap.Address,
) (pagemap.Address, bool) {
	row := n.geometry.Row(a.Physical)
	return n.searchSameBank(a, n.nextRowIndex(row))
}

// PrevRowDeterministic returns an address in the row below a that decodes to
// the same bank and channel as a.
func (n *Navigator) PrevRowDeterministic(
	a pagemap.Address,
) (pagemap.Address, bool) {
	row := n.geometry.Row(a.Physical)
	return n.searchSameBank(a, n.prevRowIndex(row))
}

// searchSameBank tries every value of the bank override bits and keeps the
// first candidate the buffer owns that stays in the bank and channel of a.
func (n *Navigator) searchSameBank(
	a pagemap.Address,
	row uint64,
) (pagemap.Address, bool) {
	g := n.geometry
	moved := g.ComposeRow(a.Physical, row)

	for v := uint64(0); v < g.BankOverrideCount(); v++ {
		candidate := g.ComposeBankBits(moved, v)
		if !g.SameBankAndChannel(candidate, a.Physical) {
			continue
		}

		resolved, ok := n.resolve(candidate)
		if ok {
			return resolved, true
		}
	}

	return pagemap.Address{}, false
}

// Step walks |steps| rows away from a with the deterministic search, upward
// for positive steps and downward for negative ones.
func (n *Navigator) Step(a pagemap.Address, steps int) (pagemap.Address, bool) {
	move := n.NextRowDeterministic
	if steps < 0 {
		move = n.PrevRowDeterministic
		steps = -steps
	}

	current := a
	for i := 0; i < steps; i++ {
		next, ok := move(current)
		if !ok {
			return pagemap.Address{}, false
		}

		current = next
	}

	return current, true
}

// IsPossiblySameRow returns true if both addresses carry the same row index.
// Addresses in different banks may still be reported as the same row.
func (n *Navigator) IsPossiblySameRow(a, b pagemap.Address) bool {
	return n.geometry.Row(a.Physical) == n.geometry.Row(b.Physical)
}
