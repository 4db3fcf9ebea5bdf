package bitflip

import (
	"fmt"

	"github.com/sarchlab/hammerbed/mem/pagemap"
)

// Direction tells which way a bit flipped.
type Direction int

// The flip directions. The direction is named after the value the bit reads
// as now.
const (
	OneToZero Direction = iota
	ZeroToOne
)

func (d Direction) String() string {
	if d == ZeroToOne {
		return "0->1"
	}

	return "1->0"
}

// A Record describes one flipped bit.
type Record struct {
	Direction   Direction
	Address     pagemap.Address
	BitPosition int
	Expected    uint64
	Actual      uint64
}

func (r Record) String() string {
	return fmt.Sprintf("%s bit %d (%s): expected 0x%x, actual 0x%x",
		r.Address, r.BitPosition, r.Direction, r.Expected, r.Actual)
}
