package pagemap

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrEmptyTable is returned when a buffer holds no complete page.
var ErrEmptyTable = errors.New("translation table would be empty")

// A PageEntry records which physical frame backs one page of the buffer.
type PageEntry struct {
	PFN         uint64
	VirtualBase uintptr
}

// A Table maps every page of a buffer to its physical frame. It answers
// forward queries by page index and reverse queries by a linear scan.
type Table struct {
	base    uintptr
	size    uint64
	entries []PageEntry
}

// Build walks the buffer once, translating the first byte of each page.
func Build(tr Translator, base uintptr, size uint64) (*Table, error) {
	pages := size >> PageShift
	if pages == 0 {
		return nil, fmt.Errorf("buffer of %d bytes: %w", size, ErrEmptyTable)
	}

	t := &Table{
		base:    base,
		size:    pages << PageShift,
		entries: make([]PageEntry, pages),
	}

	for i := range t.entries {
		va := base + uintptr(i)<<PageShift

		pa, err := tr.PhysicalAddress(va)
		if err != nil {
			return nil, fmt.Errorf("building translation table: %w", err)
		}

		t.entries[i] = PageEntry{
			PFN:         pa >> PageShift,
			VirtualBase: va,
		}
	}

	return t, nil
}

// Base returns the first virtual address covered by the table.
func (t *Table) Base() uintptr {
	return t.base
}

// Size returns the number of bytes covered by the table.
func (t *Table) Size() uint64 {
	return t.size
}

// Len returns the number of pages in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns the page entries in buffer order. The slice must not be
// modified.
func (t *Table) Entries() []PageEntry {
	return t.entries
}

// Contains returns true if va lies inside the buffer.
func (t *Table) Contains(va uintptr) bool {
	return va >= t.base && uint64(va-t.base) < t.size
}

// PhysicalAddress returns the physical address of va from the table, without
// asking the kernel again.
func (t *Table) PhysicalAddress(va uintptr) (uint64, error) {
	if !t.Contains(va) {
		return 0, fmt.Errorf("va 0x%x: %w", va, ErrNotMapped)
	}

	e := t.entries[uint64(va-t.base)>>PageShift]

	return e.PFN<<PageShift | uint64(va)&pageOffsetMask, nil
}

// Resolve returns the address pair of va.
func (t *Table) Resolve(va uintptr) (Address, error) {
	return Resolve(t, va)
}

// LookupVirtual finds the virtual address that maps to pa. It returns false
// if the physical page does not belong to the buffer.
func (t *Table) LookupVirtual(pa uint64) (uintptr, bool) {
	pfn := pa >> PageShift

	for _, e := range t.entries {
		if e.PFN == pfn {
			return e.VirtualBase + uintptr(pa&pageOffsetMask), true
		}
	}

	return 0, false
}

// LookupAddress is the same as LookupVirtual, but returns the address pair.
func (t *Table) LookupAddress(pa uint64) (Address, bool) {
	va, ok := t.LookupVirtual(pa)
	if !ok {
		return Address{}, false
	}

	return Address{Virtual: va, Physical: pa}, true
}

// Verify picks n random addresses inside the buffer, translates each with tr
// and checks that the table maps the physical address back to the same
// virtual address.
func (t *Table) Verify(tr Translator, rng *rand.Rand, n int) error {
	for i := 0; i < n; i++ {
		va := t.base + uintptr(rng.Int63n(int64(t.size)))

		pa, err := tr.PhysicalAddress(va)
		if err != nil {
			return fmt.Errorf("round-trip check: %w", err)
		}

		back, ok := t.LookupVirtual(pa)
		if !ok {
			return fmt.Errorf(
				"round-trip check: pa 0x%x of va 0x%x is not in the table",
				pa, va)
		}

		if back != va {
			return fmt.Errorf(
				"round-trip check: va 0x%x -> pa 0x%x -> va 0x%x", va, pa, back)
		}
	}

	return nil
}
