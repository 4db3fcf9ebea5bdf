// Package pagemap translates between the virtual addresses of a test buffer
// and the physical addresses that back them.
package pagemap

import "fmt"

const (
	// PageShift is the binary log of the translation granule.
	PageShift = 12

	// PageSize is the translation granule. Huge pages are still translated
	// 4 KiB at a time.
	PageSize = 1 << PageShift

	pageOffsetMask = PageSize - 1
)

// An Address pairs a virtual address with the physical address that backs it.
// The physical address is always the result of a translation. The zero value
// is the invalid address.
type Address struct {
	Virtual  uintptr
	Physical uint64
}

// IsValid returns true if the address points into memory.
func (a Address) IsValid() bool {
	return a.Virtual != 0
}

func (a Address) String() string {
	return fmt.Sprintf("va=0x%x pa=0x%x", a.Virtual, a.Physical)
}

// Resolve translates va with the translator and returns the address pair.
func Resolve(tr Translator, va uintptr) (Address, error) {
	pa, err := tr.PhysicalAddress(va)
	if err != nil {
		return Address{}, err
	}

	return Address{Virtual: va, Physical: pa}, nil
}

// MustResolve is the same as Resolve, but panics if the translation fails.
func MustResolve(tr Translator, va uintptr) Address {
	a, err := Resolve(tr, va)
	if err != nil {
		panic(err)
	}

	return a
}
