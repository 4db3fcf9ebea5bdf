// Package calibrate measures how long the hammering instructions take on the
// running machine.
package calibrate

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

// DefaultIterations is the number of accesses measured per configuration.
const DefaultIterations = 1_000_000

// Counters are named hardware event counts, such as cache refills.
type Counters map[string]uint64

// A CounterSink reads performance counters around a measurement.
type CounterSink interface {
	// Reset clears the counters before a measurement.
	Reset() error

	// Read returns the counts since the last reset.
	Read() (Counters, error)
}

// NoCounters is a CounterSink that reports no counter.
type NoCounters struct{}

// Reset does nothing.
func (NoCounters) Reset() error {
	return nil
}

// Read returns no counter.
func (NoCounters) Read() (Counters, error) {
	return nil, nil
}

// A Measurement is the result for one configuration.
type Measurement struct {
	Config      hammer.Config
	Nanoseconds uint64
	Counters    Counters
}

// PerAccess returns the average duration of one access.
func (m Measurement) PerAccess() float64 {
	if m.Config.Iterations == 0 {
		return 0
	}

	return float64(m.Nanoseconds) / float64(m.Config.Iterations)
}

// Configs returns the configurations that are measured with the given
// iteration count: for loads and stores, no maintenance with and without a
// barrier, then clean and clean-invalidate with and without a barrier.
func Configs(iterations uint64) []hammer.Config {
	var configs []hammer.Config

	for _, op := range []hammer.Operation{hammer.OpLoad, hammer.OpStore} {
		for _, cacheOp := range []memop.CacheOp{
			memop.CacheOpNone, memop.CacheOpClean, memop.CacheOpCleanInvalidate,
		} {
			for _, barrier := range []bool{false, true} {
				configs = append(configs, hammer.Config{
					Iterations: iterations,
					Operation:  op,
					CacheOp:    cacheOp,
					Barrier:    barrier,
				})
			}
		}
	}

	return configs
}

// A Calibrator runs the timing test.
type Calibrator struct {
	hammerer   *hammer.Hammerer
	sink       CounterSink
	iterations uint64
}

// Builder can build calibrators.
type Builder struct {
	hammerer   *hammer.Hammerer
	sink       CounterSink
	iterations uint64
}

// MakeBuilder creates a builder with the default iteration count and no
// counters.
func MakeBuilder() Builder {
	return Builder{
		sink:       NoCounters{},
		iterations: DefaultIterations,
	}
}

// WithHammerer sets the hammerer to measure. It must have timing enabled.
func (b Builder) WithHammerer(h *hammer.Hammerer) Builder {
	b.hammerer = h
	return b
}

// WithCounterSink sets where counters are read from.
func (b Builder) WithCounterSink(s CounterSink) Builder {
	b.sink = s
	return b
}

// WithIterations sets the number of accesses per configuration.
func (b Builder) WithIterations(n uint64) Builder {
	b.iterations = n
	return b
}

// Build creates the calibrator.
func (b Builder) Build() *Calibrator {
	h := b.hammerer
	if h == nil {
		h = hammer.MakeBuilder().Build()
	}

	sink := b.sink
	if sink == nil {
		sink = NoCounters{}
	}

	return &Calibrator{
		hammerer:   h,
		sink:       sink,
		iterations: b.iterations,
	}
}

// Measure hammers the target once with every configuration.
func (c *Calibrator) Measure(target pagemap.Address) ([]Measurement, error) {
	configs := Configs(c.iterations)
	results := make([]Measurement, 0, len(configs))

	for _, cfg := range configs {
		err := c.sink.Reset()
		if err != nil {
			return nil, fmt.Errorf("resetting counters: %w", err)
		}

		ns, err := c.hammerer.Single(target, cfg)
		if err != nil {
			return nil, fmt.Errorf("measuring %s: %w", cfg, err)
		}

		counters, err := c.sink.Read()
		if err != nil {
			return nil, fmt.Errorf("reading counters: %w", err)
		}

		results = append(results, Measurement{
			Config:      cfg,
			Nanoseconds: ns,
			Counters:    counters,
		})
	}

	return results, nil
}

// WriteTable writes the measurements as a table.
func WriteTable(w io.Writer, results []Measurement) error {
	names := counterNames(results)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	header := []string{"OP", "CACHE", "BARRIER", "NS/ACCESS"}
	for _, n := range names {
		header = append(header, strings.ToUpper(n))
	}

	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range results {
		row := []string{
			r.Config.Operation.String(),
			r.Config.CacheOp.String(),
			fmt.Sprintf("%t", r.Config.Barrier),
			fmt.Sprintf("%.2f", r.PerAccess()),
		}

		for _, n := range names {
			row = append(row, fmt.Sprintf("%d", r.Counters[n]))
		}

		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

func counterNames(results []Measurement) []string {
	seen := make(map[string]bool)

	var names []string
	for _, r := range results {
		for n := range r.Counters {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}

	sort.Strings(names)

	return names
}
