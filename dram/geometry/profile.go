package geometry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// A Field describes how one DRAM coordinate is decoded from a physical
// address.
//
// If Parity is empty, the bits selected by Mask are gathered (lowest bit
// first) into a small integer. Otherwise, each entry of Parity contributes one
// bit, the parity of the address masked by that entry. The first entry is the
// most significant bit of the result.
type Field struct {
	Mask   uint64   `yaml:"mask,omitempty"`
	Parity []uint64 `yaml:"parity,omitempty"`
}

// Decode extracts the field value from the address.
func (f Field) Decode(addr uint64) uint64 {
	if len(f.Parity) == 0 {
		return gather(addr, f.Mask)
	}

	value := uint64(0)
	for _, m := range f.Parity {
		value = value<<1 | parity(addr&m)
	}

	return value
}

// IsHashed returns true if the field is an XOR-fold of several address bits.
func (f Field) IsHashed() bool {
	return len(f.Parity) > 0
}

// A Profile is the static description of how a memory controller maps
// physical addresses onto DRAM coordinates.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// RowMask selects the row bits. It is the only field that can be
	// rewritten.
	RowMask uint64 `yaml:"row_mask"`

	// ColumnMask selects the column bits. The bits do not need to be
	// contiguous.
	ColumnMask uint64 `yaml:"column_mask"`

	// BankOverrideMask selects the raw address bits that are tried when
	// searching for a neighbor row that stays in the same bank.
	BankOverrideMask uint64 `yaml:"bank_override_mask"`

	// Placeholder marks profiles whose hashed fields are not measured.
	Placeholder bool `yaml:"placeholder,omitempty"`

	Bank         Field `yaml:"bank"`
	Channel      Field `yaml:"channel"`
	Subpartition Field `yaml:"subpartition"`
	Device       Field `yaml:"device"`
}

// Validate checks that the profile can be used for row navigation.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("geometry profile has no name")
	}

	if p.RowMask == 0 {
		return fmt.Errorf("geometry profile %q has an empty row mask", p.Name)
	}

	if p.RowMask&p.BankOverrideMask != 0 {
		return fmt.Errorf(
			"geometry profile %q: row mask 0x%x overlaps bank override mask 0x%x",
			p.Name, p.RowMask, p.BankOverrideMask)
	}

	if p.RowMask&p.ColumnMask != 0 {
		return fmt.Errorf(
			"geometry profile %q: row mask 0x%x overlaps column mask 0x%x",
			p.Name, p.RowMask, p.ColumnMask)
	}

	return nil
}

// LoadProfile reads a profile from a YAML file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading geometry profile: %w", err)
	}

	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile and validates it.
func ParseProfile(data []byte) (Profile, error) {
	p := Profile{}

	err := yaml.Unmarshal(data, &p)
	if err != nil {
		return Profile{}, fmt.Errorf("decoding geometry profile: %w", err)
	}

	err = p.Validate()
	if err != nil {
		return Profile{}, err
	}

	return p, nil
}
