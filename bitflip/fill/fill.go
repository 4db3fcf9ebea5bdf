// Package fill defines the values a test buffer is initialized with.
package fill

import (
	"fmt"
	"math/bits"
	"strings"

	"k8s.io/klog/v2"
)

// A Pattern computes the expected content of the word at an address. The same
// address always yields the same value.
type Pattern interface {
	Name() string
	Evaluate(addr uint64) uint64
}

// The constant words.
const (
	WordAA = uint64(0xAAAAAAAA)
	Word55 = uint64(0x55555555)
)

// Constant fills every word with the same value.
type Constant struct {
	Label string
	Value uint64
}

// Name returns the label of the constant.
func (c Constant) Name() string {
	return c.Label
}

// Evaluate returns the constant.
func (c Constant) Evaluate(uint64) uint64 {
	return c.Value
}

// AddressParity alternates between the two checkerboard words depending on
// the parity of the number of set bits in the address.
type AddressParity struct{}

// Name returns "parity".
func (AddressParity) Name() string {
	return "parity"
}

// Evaluate returns WordAA for addresses with odd parity, Word55 otherwise.
func (AddressParity) Evaluate(addr uint64) uint64 {
	if bits.OnesCount64(addr)&1 == 1 {
		return WordAA
	}

	return Word55
}

// SeededPseudorandom derives each word from the address and a seed with the
// SplitMix64 finalizer.
type SeededPseudorandom struct {
	Seed uint64
}

// Name returns "rand".
func (SeededPseudorandom) Name() string {
	return "rand"
}

// Evaluate hashes the address with the seed.
func (p SeededPseudorandom) Evaluate(addr uint64) uint64 {
	return splitmix64(addr ^ p.Seed)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ x>>30) * 0xbf58476d1ce4e5b9
	x = (x ^ x>>27) * 0x94d049bb133111eb

	return x ^ x>>31
}

// DefaultName is the pattern used when a name is not recognized.
const DefaultName = "aa"

// Names lists the names accepted by Parse.
func Names() []string {
	return []string{"aa", "55", "parity", "rand"}
}

// Parse returns the pattern with the given name. The seed is only used by the
// pseudorandom pattern. Unknown names fall back to DefaultName with a warning.
func Parse(name string, seed uint64) Pattern {
	switch strings.ToLower(name) {
	case "aa":
		return Constant{Label: "aa", Value: WordAA}
	case "55":
		return Constant{Label: "55", Value: Word55}
	case "parity":
		return AddressParity{}
	case "rand", "random":
		return SeededPseudorandom{Seed: seed}
	}

	klog.Warningf("unknown fill pattern %q, falling back to %s",
		name, DefaultName)

	return Parse(DefaultName, seed)
}

// Detail returns a one-line description of the pattern, including the seed
// when it matters.
func Detail(p Pattern) string {
	if r, ok := p.(SeededPseudorandom); ok {
		return fmt.Sprintf("%s (seed 0x%x)", r.Name(), r.Seed)
	}

	return p.Name()
}
