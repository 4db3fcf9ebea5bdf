package pagemap

import (
	"errors"
	"fmt"
)

// A Translator can find the physical address of a virtual address.
type Translator interface {
	PhysicalAddress(va uintptr) (uint64, error)
}

var (
	// ErrPageNotPresent is returned when the page backing an address is not
	// resident.
	ErrPageNotPresent = errors.New("page is not present in memory")

	// ErrZeroPFN is returned when the kernel reports a zero page frame
	// number. Unprivileged readers of the pagemap always see zero.
	ErrZeroPFN = errors.New("page frame number is zero, are you running as root?")

	// ErrNotMapped is returned by translators that do not know the address.
	ErrNotMapped = errors.New("address is not mapped")
)

const (
	entryPresent = uint64(1) << 63
	entryPFNMask = uint64(1)<<55 - 1
)

// decodeEntry turns a raw pagemap entry into a physical address.
func decodeEntry(entry uint64, va uintptr) (uint64, error) {
	if entry&entryPresent == 0 {
		return 0, fmt.Errorf("va 0x%x: %w", va, ErrPageNotPresent)
	}

	pfn := entry & entryPFNMask
	if pfn == 0 {
		return 0, fmt.Errorf("va 0x%x: %w", va, ErrZeroPFN)
	}

	return pfn<<PageShift | uint64(va)&pageOffsetMask, nil
}

// StaticTranslator maps a contiguous virtual range onto caller-chosen page
// frames. It stands in for the kernel when the physical layout has to be
// known in advance.
type StaticTranslator struct {
	Base uintptr
	PFNs []uint64
}

// NewContiguousTranslator maps size bytes starting at base onto physically
// contiguous frames starting at physBase. physBase must be page aligned.
func NewContiguousTranslator(base uintptr, size uint64, physBase uint64) *StaticTranslator {
	pages := size >> PageShift
	pfns := make([]uint64, pages)

	for i := range pfns {
		pfns[i] = physBase>>PageShift + uint64(i)
	}

	return &StaticTranslator{Base: base, PFNs: pfns}
}

// PhysicalAddress returns the physical address of va.
func (t *StaticTranslator) PhysicalAddress(va uintptr) (uint64, error) {
	if va < t.Base {
		return 0, fmt.Errorf("va 0x%x: %w", va, ErrNotMapped)
	}

	page := uint64(va-t.Base) >> PageShift
	if page >= uint64(len(t.PFNs)) {
		return 0, fmt.Errorf("va 0x%x: %w", va, ErrNotMapped)
	}

	return decodeEntry(entryPresent|t.PFNs[page], va)
}
