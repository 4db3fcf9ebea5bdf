//go:build linux

package buffer

import "golang.org/x/sys/unix"

const (
	hugeShift = 26
	huge2MB   = 21 << hugeShift
	huge1GB   = 30 << hugeShift
)

func mapMemory(size int, backing Backing) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_POPULATE

	switch backing {
	case HugePage2MB:
		flags |= unix.MAP_HUGETLB | huge2MB
	case HugePage1GB:
		flags |= unix.MAP_HUGETLB | huge1GB
	}

	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
}

func unmapMemory(mem []byte) error {
	return unix.Munmap(mem)
}
