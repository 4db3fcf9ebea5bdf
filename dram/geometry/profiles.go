package geometry

import (
	"fmt"
	"sort"
)

func bit(n uint) uint64 {
	return 1 << n
}

// TegraX1 is the profile of the Jetson Nano 4 GB board. Only the row, column
// and bank override masks are known for this board. The bank, channel,
// subpartition and device fields are placeholders that XOR row bits into the
// bank the way the controller is known to, but with guessed bit positions.
// Load measured masks with WithProfileFile before trusting bank checks.
var TegraX1 = Profile{
	Name:             "tegra-x1",
	Description:      "NVIDIA Tegra X1 (Jetson Nano 4 GB), LPDDR4",
	Placeholder:      true,
	RowMask:          0x0000_0000_ffff_0000,
	ColumnMask:       0x0000_0000_0000_e3dc,
	BankOverrideMask: 0x0000_0000_0000_1c00,
	Bank: Field{Parity: []uint64{
		bit(12) | bit(18) | bit(21) | bit(24) | bit(27),
		bit(11) | bit(17) | bit(20) | bit(23) | bit(26),
		bit(10) | bit(16) | bit(19) | bit(22) | bit(25),
	}},
	Channel:      Field{Parity: []uint64{bit(5) | bit(29)}},
	Subpartition: Field{Parity: []uint64{bit(30) | bit(32)}},
	Device:       Field{Mask: bit(33)},
}

// Linear is a profile without any address hashing. The bank is the raw bank
// override bits, which makes naive and deterministic row navigation agree.
var Linear = Profile{
	Name:             "linear",
	Description:      "No hashing; rows above bit 16, banks in bits 10-12",
	RowMask:          0x0000_0000_ffff_0000,
	ColumnMask:       0x0000_0000_0000_03f8,
	BankOverrideMask: 0x0000_0000_0000_1c00,
	Bank:             Field{Mask: 0x1c00},
}

// DefaultProfileName is used when no profile is configured.
const DefaultProfileName = "tegra-x1"

var builtinProfiles = map[string]Profile{
	TegraX1.Name: TegraX1,
	Linear.Name:  Linear,
}

// LookupProfile returns the built-in profile with the given name.
func LookupProfile(name string) (Profile, error) {
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown geometry profile %q", name)
	}

	return p, nil
}

// ProfileNames lists the names of the built-in profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
