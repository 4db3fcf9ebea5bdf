//go:build !linux

package pagemap

import "errors"

// Pagemap is only available on Linux.
type Pagemap struct{}

// OpenPagemap always fails outside Linux.
func OpenPagemap() (*Pagemap, error) {
	return nil, errors.New("/proc/self/pagemap is only available on Linux")
}

// PhysicalAddress always fails outside Linux.
func (p *Pagemap) PhysicalAddress(va uintptr) (uint64, error) {
	return 0, ErrNotMapped
}

// Close does nothing.
func (p *Pagemap) Close() error {
	return nil
}
