// Package buffer allocates the memory that is hammered.
package buffer

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/hammer/memop"
)

// A Buffer is a memory mapping outside of the Go heap. Its pages are resident
// from the start, so that every page has a physical frame.
type Buffer struct {
	mem     []byte
	backing Backing
}

// Allocate maps size bytes with the given backing. The size is rounded up to
// a whole number of pages of the backing.
func Allocate(size uint64, backing Backing) (*Buffer, error) {
	if size == 0 {
		return nil, errors.New("cannot allocate an empty buffer")
	}

	pageSize := backing.PageSize()
	rounded := (size + pageSize - 1) / pageSize * pageSize

	mem, err := mapMemory(int(rounded), backing)
	if err != nil {
		if backing != Standard {
			return nil, fmt.Errorf(
				"failed to allocate %d bytes of %s huge pages "+
					"(reserve huge pages first, e.g. via "+
					"/sys/kernel/mm/hugepages): %w",
				rounded, backing, err)
		}

		return nil, fmt.Errorf("failed to allocate %d bytes: %w", rounded, err)
	}

	return &Buffer{mem: mem, backing: backing}, nil
}

// Base returns the address of the first byte.
func (b *Buffer) Base() uintptr {
	return uintptr(unsafe.Pointer(&b.mem[0]))
}

// Size returns the length of the buffer in bytes.
func (b *Buffer) Size() uint64 {
	return uint64(len(b.mem))
}

// Backing returns the page backing of the buffer.
func (b *Buffer) Backing() Backing {
	return b.backing
}

// Bytes exposes the buffer content.
func (b *Buffer) Bytes() []byte {
	return b.mem
}

// Fill writes the pattern into every word of the buffer.
func (b *Buffer) Fill(p fill.Pattern) {
	base := b.Base()

	for off := uintptr(0); off < uintptr(len(b.mem)); off += 8 {
		addr := base + off
		*memop.Word(addr) = p.Evaluate(uint64(addr))
	}
}

// Release unmaps the buffer. It must not be used afterwards.
func (b *Buffer) Release() error {
	if b.mem == nil {
		return nil
	}

	err := unmapMemory(b.mem)
	b.mem = nil

	return err
}
