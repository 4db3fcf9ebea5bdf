// Package geometry decodes physical addresses into DRAM coordinates.
package geometry

// Geometry decodes physical addresses according to one Profile.
type Geometry struct {
	profile Profile
	rowMax  uint64
}

// Profile returns the profile the geometry was built from.
func (g *Geometry) Profile() Profile {
	return g.profile
}

// Row returns the row index of the physical address.
func (g *Geometry) Row(addr uint64) uint64 {
	return gather(addr, g.profile.RowMask)
}

// RowMax returns the largest row index. Row arithmetic wraps around at this
// value.
func (g *Geometry) RowMax() uint64 {
	return g.rowMax
}

// Column returns the column index of the physical address.
func (g *Geometry) Column(addr uint64) uint64 {
	return gather(addr, g.profile.ColumnMask)
}

// Bank returns the effective bank index, after any controller hashing.
func (g *Geometry) Bank(addr uint64) uint64 {
	return g.profile.Bank.Decode(addr)
}

// Channel returns the channel index of the physical address.
func (g *Geometry) Channel(addr uint64) uint64 {
	return g.profile.Channel.Decode(addr)
}

// Subpartition returns the subpartition index of the physical address.
func (g *Geometry) Subpartition(addr uint64) uint64 {
	return g.profile.Subpartition.Decode(addr)
}

// Device returns the device index of the physical address.
func (g *Geometry) Device(addr uint64) uint64 {
	return g.profile.Device.Decode(addr)
}

// ComposeRow replaces the row bits of the address with row. All other bits are
// left untouched. Bits of row above RowMax are dropped.
func (g *Geometry) ComposeRow(addr, row uint64) uint64 {
	mask := g.profile.RowMask
	return addr&^mask | scatter(row, mask)
}

// BankOverrideCount returns the number of distinct values the bank override
// bits can take.
func (g *Geometry) BankOverrideCount() uint64 {
	return fieldMax(g.profile.BankOverrideMask) + 1
}

// ComposeBankBits replaces the raw bank override bits of the address with
// value.
func (g *Geometry) ComposeBankBits(addr, value uint64) uint64 {
	mask := g.profile.BankOverrideMask
	return addr&^mask | scatter(value, mask)
}

// Location is the full set of DRAM coordinates of an address.
type Location struct {
	Row          uint64
	Column       uint64
	Bank         uint64
	Channel      uint64
	Subpartition uint64
	Device       uint64
}

// Locate decodes every coordinate of the address.
func (g *Geometry) Locate(addr uint64) Location {
	return Location{
		Row:          g.Row(addr),
		Column:       g.Column(addr),
		Bank:         g.Bank(addr),
		Channel:      g.Channel(addr),
		Subpartition: g.Subpartition(addr),
		Device:       g.Device(addr),
	}
}

// SameBankAndChannel returns true if both addresses decode to the same bank and
// the same channel.
func (g *Geometry) SameBankAndChannel(a, b uint64) bool {
	return g.Bank(a) == g.Bank(b) && g.Channel(a) == g.Channel(b)
}
