package experiment

import (
	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/dram/geometry"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/pattern"
)

// Defaults of the run configuration.
const (
	DefaultBufferSize          = 32 << 20
	DefaultIterations          = 1000
	DefaultActivations         = 1_000_000
	DefaultCore                = 3
	DefaultVerifySamples       = 100
	DefaultMaxConsecutiveSkips = 1_000_000

	// SimulatedPhysicalBase is where the buffer is placed in simulation
	// mode.
	SimulatedPhysicalBase = 0x8000_0000
)

// Config describes one run.
type Config struct {
	BufferSize uint64
	Backing    buffer.Backing

	Pattern    pattern.Kind
	Sides      int
	Iterations uint64
	Hammer     hammer.Config
	Timing     bool

	Fill string
	Seed uint64

	Profile     string
	ProfileFile string

	Uncacheable bool

	// Core is the logical CPU the run is pinned to. Negative values leave
	// the scheduler free.
	Core int

	// Simulate replaces the pagemap with a contiguous synthetic physical
	// range starting at SimulatedPhysicalBase.
	Simulate bool

	VerifySamples int

	// MaxConsecutiveSkips bounds how many aggressors in a row may be
	// rejected. Zero means no bound.
	MaxConsecutiveSkips uint64

	// CalibrationIterations enables the instruction timing test before the
	// run when non-zero.
	CalibrationIterations uint64
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		BufferSize: DefaultBufferSize,
		Backing:    buffer.Standard,
		Pattern:    pattern.DefaultKind,
		Sides:      pattern.DefaultSides,
		Iterations: DefaultIterations,
		Hammer: hammer.Config{
			Iterations: DefaultActivations,
			Operation:  hammer.DefaultOperation,
			CacheOp:    memop.DefaultCacheOp,
			Barrier:    true,
		},
		Timing:              true,
		Fill:                fill.DefaultName,
		Profile:             geometry.DefaultProfileName,
		Core:                DefaultCore,
		VerifySamples:       DefaultVerifySamples,
		MaxConsecutiveSkips: DefaultMaxConsecutiveSkips,
	}
}

func (c Config) profileLabel() string {
	if c.ProfileFile != "" {
		return c.ProfileFile
	}

	return c.Profile
}

func (c Config) geometry() (*geometry.Geometry, error) {
	b := geometry.MakeBuilder().WithProfileName(c.Profile)
	if c.ProfileFile != "" {
		b = b.WithProfileFile(c.ProfileFile)
	}

	return b.Build()
}
