//go:build linux

package pagemap

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const pagemapPath = "/proc/self/pagemap"

// Pagemap translates addresses of the current process through
// /proc/self/pagemap. Reading page frame numbers requires CAP_SYS_ADMIN.
type Pagemap struct {
	file *os.File
}

// OpenPagemap opens the pagemap of the current process.
func OpenPagemap() (*Pagemap, error) {
	f, err := os.Open(pagemapPath)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to open %s, are you running as root? %w", pagemapPath, err)
	}

	return &Pagemap{file: f}, nil
}

// PhysicalAddress returns the physical address that backs va.
func (p *Pagemap) PhysicalAddress(va uintptr) (uint64, error) {
	var buf [8]byte

	offset := int64(va>>PageShift) * 8

	n, err := unix.Pread(int(p.file.Fd()), buf[:], offset)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", pagemapPath, err)
	}

	if n != len(buf) {
		return 0, fmt.Errorf(
			"short read from %s (%d bytes), are you running as root?",
			pagemapPath, n)
	}

	return decodeEntry(binary.LittleEndian.Uint64(buf[:]), va)
}

// Close releases the pagemap file.
func (p *Pagemap) Close() error {
	return p.file.Close()
}
