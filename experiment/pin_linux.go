package experiment

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinToCore restricts the calling thread to one logical CPU.
func pinToCore(core int) error {
	var set unix.CPUSet

	set.Zero()
	set.Set(core)

	err := unix.SchedSetaffinity(0, &set)
	if err != nil {
		return fmt.Errorf("pinning to core %d: %w", core, err)
	}

	return nil
}
