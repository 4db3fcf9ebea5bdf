//go:build !linux

package buffer

import (
	"errors"

	"golang.org/x/sys/unix"
)

func mapMemory(size int, backing Backing) ([]byte, error) {
	if backing != Standard {
		return nil, errors.New("huge pages are only supported on Linux")
	}

	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapMemory(mem []byte) error {
	return unix.Munmap(mem)
}
