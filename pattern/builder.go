package pattern

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sarchlab/hammerbed/dram/rownav"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

// DefaultSides is the default number of aggressors of the many-sided pattern.
const DefaultSides = 8

const defaultDecoyAttempts = 1024

// A Region is the buffer the aggressors are picked from.
type Region interface {
	Base() uintptr
	Size() uint64
}

// Builder can build generators.
type Builder struct {
	hammerer      *hammer.Hammerer
	navigator     *rownav.Navigator
	translator    pagemap.Translator
	region        Region
	rng           *rand.Rand
	config        hammer.Config
	sides         int
	decoyAttempts int
}

// MakeBuilder creates a builder with default settings.
func MakeBuilder() Builder {
	return Builder{
		sides:         DefaultSides,
		decoyAttempts: defaultDecoyAttempts,
		config: hammer.Config{
			Iterations: 1_000_000,
		},
	}
}

// WithHammerer sets the hammerer that runs the loops.
func (b Builder) WithHammerer(h *hammer.Hammerer) Builder {
	b.hammerer = h
	return b
}

// WithNavigator sets the row navigator.
func (b Builder) WithNavigator(n *rownav.Navigator) Builder {
	b.navigator = n
	return b
}

// WithTranslator sets the translator used for random addresses.
func (b Builder) WithTranslator(t pagemap.Translator) Builder {
	b.translator = t
	return b
}

// WithRegion sets the buffer that random addresses are drawn from.
func (b Builder) WithRegion(r Region) Builder {
	b.region = r
	return b
}

// WithRand sets the random source.
func (b Builder) WithRand(rng *rand.Rand) Builder {
	b.rng = rng
	return b
}

// WithConfig sets the hammering configuration.
func (b Builder) WithConfig(c hammer.Config) Builder {
	b.config = c
	return b
}

// WithSides sets the number of aggressors of the many-sided pattern.
func (b Builder) WithSides(n int) Builder {
	b.sides = n
	return b
}

// WithDecoyAttempts sets how many random addresses the decoy pattern draws
// before giving up.
func (b Builder) WithDecoyAttempts(n int) Builder {
	b.decoyAttempts = n
	return b
}

// Build creates the generator.
func (b Builder) Build() (*Generator, error) {
	if b.hammerer == nil || b.navigator == nil || b.region == nil {
		return nil, errors.New(
			"pattern generator needs a hammerer, a navigator and a region")
	}

	if b.region.Size() < 8 {
		return nil, fmt.Errorf("region of %d bytes is too small",
			b.region.Size())
	}

	if b.sides < 2 {
		return nil, fmt.Errorf("many-sided pattern needs at least 2 sides, got %d",
			b.sides)
	}

	translator := b.translator
	if translator == nil {
		tr, ok := b.region.(pagemap.Translator)
		if !ok {
			return nil, errors.New("pattern generator needs a translator")
		}

		translator = tr
	}

	rng := b.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	return &Generator{
		hammerer:      b.hammerer,
		navigator:     b.navigator,
		translator:    translator,
		base:          b.region.Base(),
		size:          b.region.Size(),
		rng:           rng,
		config:        b.config,
		sides:         b.sides,
		decoyAttempts: b.decoyAttempts,
	}, nil
}
