package experiment

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/hammerbed/calibrate"
	"github.com/sarchlab/hammerbed/datarecording"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
	"github.com/sarchlab/hammerbed/monitoring"
	"github.com/sarchlab/hammerbed/resultlog"
)

// Builder can build experiments.
type Builder struct {
	config       Config
	runID        string
	backend      memop.Backend
	translator   pagemap.Translator
	buffer       *buffer.Buffer
	runner       PatternRunner
	cacheability buffer.CacheabilityController
	counterSink  calibrate.CounterSink
	results      *resultlog.Writer
	recorder     datarecording.DataRecorder
	monitor      *monitoring.Monitor
	registerer   prometheus.Registerer
	progress     io.Writer
	report       io.Writer
	clock        func() time.Time
}

// MakeBuilder creates a builder with the default configuration and no
// output.
func MakeBuilder() Builder {
	return Builder{
		config:       DefaultConfig(),
		cacheability: buffer.UnsupportedCacheability{},
		counterSink:  calibrate.NoCounters{},
		report:       io.Discard,
		clock:        time.Now,
	}
}

// WithConfig sets the run configuration.
func (b Builder) WithConfig(c Config) Builder {
	b.config = c
	return b
}

// WithRunID sets the ID under which the run is recorded. By default a new
// ID is generated.
func (b Builder) WithRunID(id string) Builder {
	b.runID = id
	return b
}

// WithBackend sets the memory-op backend. The default is the backend of the
// running architecture.
func (b Builder) WithBackend(backend memop.Backend) Builder {
	b.backend = backend
	return b
}

// WithTranslator replaces the translator that is otherwise chosen from the
// configuration.
func (b Builder) WithTranslator(t pagemap.Translator) Builder {
	b.translator = t
	return b
}

// WithBuffer makes the run use an existing buffer instead of allocating one.
// The buffer is refilled but not released.
func (b Builder) WithBuffer(buf *buffer.Buffer) Builder {
	b.buffer = buf
	return b
}

// WithPatternRunner replaces the pattern generator.
func (b Builder) WithPatternRunner(r PatternRunner) Builder {
	b.runner = r
	return b
}

// WithCacheability sets how the buffer is made uncacheable.
func (b Builder) WithCacheability(c buffer.CacheabilityController) Builder {
	b.cacheability = c
	return b
}

// WithCounterSink sets the counters read during calibration.
func (b Builder) WithCounterSink(s calibrate.CounterSink) Builder {
	b.counterSink = s
	return b
}

// WithResultWriter sets the result file.
func (b Builder) WithResultWriter(w *resultlog.Writer) Builder {
	b.results = w
	return b
}

// WithDataRecorder records the run into a database.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithMonitor publishes the progress of the run on a monitor.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithRegisterer sets where the run metrics are registered.
func (b Builder) WithRegisterer(reg prometheus.Registerer) Builder {
	b.registerer = reg
	return b
}

// WithProgressOutput draws a progress bar on w.
func (b Builder) WithProgressOutput(w io.Writer) Builder {
	b.progress = w
	return b
}

// WithReportOutput sets where the calibration table and the summary are
// printed.
func (b Builder) WithReportOutput(w io.Writer) Builder {
	b.report = w
	return b
}

// WithClock replaces the clock used to time the scans.
func (b Builder) WithClock(clock func() time.Time) Builder {
	b.clock = clock
	return b
}

// Build creates the experiment.
func (b Builder) Build() *Experiment {
	return &Experiment{
		config:       b.config,
		runID:        b.runID,
		backend:      b.backend,
		translator:   b.translator,
		buffer:       b.buffer,
		runner:       b.runner,
		cacheability: b.cacheability,
		counterSink:  b.counterSink,
		results:      b.results,
		recorder:     b.recorder,
		monitor:      b.monitor,
		metrics:      newMetrics(b.registerer),
		progress:     b.progress,
		report:       b.report,
		clock:        b.clock,
	}
}
