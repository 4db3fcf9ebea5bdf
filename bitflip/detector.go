// Package bitflip finds and repairs flipped bits in a test buffer.
package bitflip

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

const (
	// MaxRecords is the most records a single scan returns.
	MaxRecords = 256

	chunkWords = 4096
	wordSize   = 8
)

// ErrNotInitialized is returned when a freshly filled buffer does not hold
// the fill pattern.
var ErrNotInitialized = errors.New("buffer does not hold its fill pattern")

// A Region is a range of memory made of 8-byte words.
type Region interface {
	Base() uintptr
	Size() uint64
}

// A Detector compares a region with its fill pattern.
type Detector struct {
	translator pagemap.Translator
	expected   []uint64
	dropped    uint64
}

// Scan compares every word of the region with the pattern. Each set bit of the
// difference is recorded, up to MaxRecords, and every wrong word is rewritten
// with its expected value, recorded or not.
func (d *Detector) Scan(region Region, p fill.Pattern) []Record {
	var records []Record

	d.dropped = 0
	base := region.Base()
	words := region.Size() / wordSize

	for start := uint64(0); start < words; start += chunkWords {
		end := min(start+chunkWords, words)
		expected := d.expected[:end-start]

		for i := range expected {
			addr := base + uintptr(start+uint64(i))*wordSize
			expected[i] = p.Evaluate(uint64(addr))
		}

		for i, want := range expected {
			addr := base + uintptr(start+uint64(i))*wordSize
			word := memop.Word(addr)

			got := *word
			if got == want {
				continue
			}

			records = d.record(records, addr, want, got)
			*word = want
		}
	}

	return records
}

// Dropped returns how many flipped bits the last scan repaired without
// recording them.
func (d *Detector) Dropped() uint64 {
	return d.dropped
}

func (d *Detector) record(
	records []Record,
	addr uintptr,
	want, got uint64,
) []Record {
	diff := want ^ got
	address := d.resolve(addr)

	for bit := 0; bit < 64; bit++ {
		mask := uint64(1) << bit
		if diff&mask == 0 {
			continue
		}

		if len(records) >= MaxRecords {
			d.dropped++
			continue
		}

		dir := OneToZero
		if got&mask != 0 {
			dir = ZeroToOne
		}

		records = append(records, Record{
			Direction:   dir,
			Address:     address,
			BitPosition: bit,
			Expected:    want,
			Actual:      got,
		})
	}

	return records
}

func (d *Detector) resolve(addr uintptr) pagemap.Address {
	a := pagemap.Address{Virtual: addr}

	if d.translator == nil {
		return a
	}

	pa, err := d.translator.PhysicalAddress(addr)
	if err != nil {
		klog.Warningf("cannot translate flipped word at 0x%x: %v", addr, err)
		return a
	}

	a.Physical = pa

	return a
}

// CheckInitialized scans the region right after it was filled. Any mismatch
// means the memory cannot hold the pattern and is reported as an error.
func (d *Detector) CheckInitialized(region Region, p fill.Pattern) error {
	records := d.Scan(region, p)
	if len(records) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d flipped bits, first at %s",
		ErrNotInitialized, len(records)+int(d.dropped), records[0])
}
