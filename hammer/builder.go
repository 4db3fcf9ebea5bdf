package hammer

import (
	"time"

	"github.com/sarchlab/hammerbed/hammer/memop"
)

// Builder can build hammerers.
type Builder struct {
	backend memop.Backend
	timing  bool
	clock   func() time.Time
}

// MakeBuilder creates a builder with the backend of the running architecture
// and timing enabled.
func MakeBuilder() Builder {
	return Builder{
		timing: true,
		clock:  time.Now,
	}
}

// WithBackend sets the memory-op backend.
func (b Builder) WithBackend(backend memop.Backend) Builder {
	b.backend = backend
	return b
}

// WithTiming turns the measurement of the loop duration on or off.
func (b Builder) WithTiming(timing bool) Builder {
	b.timing = timing
	return b
}

// WithClock replaces the clock used to time the loop.
func (b Builder) WithClock(clock func() time.Time) Builder {
	b.clock = clock
	return b
}

// Build creates the hammerer.
func (b Builder) Build() *Hammerer {
	backend := b.backend
	if backend == nil {
		backend = memop.New()
	}

	return &Hammerer{
		backend: backend,
		timing:  b.timing,
		clock:   b.clock,
	}
}
