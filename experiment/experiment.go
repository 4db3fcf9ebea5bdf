// Package experiment drives a row-hammer run: it places patterns around
// random aggressors, scans the buffer for flipped bits, and reports them.
package experiment

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/xid"
	"k8s.io/klog/v2"

	"github.com/sarchlab/hammerbed/bitflip"
	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/calibrate"
	"github.com/sarchlab/hammerbed/datarecording"
	"github.com/sarchlab/hammerbed/dram/rownav"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
	"github.com/sarchlab/hammerbed/monitoring"
	"github.com/sarchlab/hammerbed/pattern"
	"github.com/sarchlab/hammerbed/resultlog"
)

// ErrTooManySkips is returned when too many aggressors in a row could not
// host the pattern.
var ErrTooManySkips = errors.New("too many consecutive skipped aggressors")

// A PatternRunner picks aggressors and hammers patterns around them.
// *pattern.Generator is the implementation used by runs.
type PatternRunner interface {
	RandomAddress() (pagemap.Address, error)
	Run(kind pattern.Kind, a pagemap.Address) (pattern.Result, error)
}

// Summary describes a finished run.
type Summary struct {
	RunID   string
	Trials  uint64
	Skipped uint64
	Flips   uint64
	Dropped uint64
	Elapsed time.Duration
}

// An Experiment is one configured run.
type Experiment struct {
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
	metrics      *metrics
	progress     io.Writer
	report       io.Writer
	clock        func() time.Time
}

// Config returns the configuration of the run.
func (e *Experiment) Config() Config {
	return e.config
}

// session holds what a run sets up before hammering.
type session struct {
	buf      *buffer.Buffer
	fill     fill.Pattern
	table    *pagemap.Table
	detector *bitflip.Detector
	runner   PatternRunner
	rng      *rand.Rand
	runRec   *datarecording.RunRecorder
	bar      *monitoring.ProgressBar
	cleanups []func()
}

func (s *session) onClose(f func()) {
	s.cleanups = append(s.cleanups, f)
}

func (s *session) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

// Run executes the run. The calling goroutine is locked to its thread and,
// if a core is configured, pinned to that core until Run returns.
func (e *Experiment) Run() (Summary, error) {
	summary := Summary{RunID: e.runID}
	if summary.RunID == "" {
		summary.RunID = xid.New().String()
	}

	if e.config.Iterations == 0 {
		return summary, errors.New("a run needs at least one iteration")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if e.config.Core >= 0 {
		err := pinToCore(e.config.Core)
		if err != nil {
			return summary, err
		}

		klog.Infof("Pinned to core %d", e.config.Core)
	}

	s := &session{}
	defer s.close()

	err := e.setup(s, summary.RunID)
	if err != nil {
		return summary, err
	}

	start := e.clock()
	err = e.loop(s, &summary)
	summary.Elapsed = e.clock().Sub(start)

	e.finish(s, summary)

	return summary, err
}

func (e *Experiment) setup(s *session, runID string) error {
	err := e.prepareBuffer(s)
	if err != nil {
		return err
	}

	tr, err := e.openTranslator(s)
	if err != nil {
		return err
	}

	s.table, err = pagemap.Build(tr, s.buf.Base(), s.buf.Size())
	if err != nil {
		return fmt.Errorf("building translation table: %w", err)
	}

	klog.Infof("Translation table built with %d entries", s.table.Len())

	s.detector = bitflip.MakeBuilder().WithTranslator(s.table).Build()

	err = s.detector.CheckInitialized(s.buf, s.fill)
	if err != nil {
		return err
	}

	s.rng = rand.New(rand.NewSource(int64(e.config.Seed)))

	err = s.table.Verify(tr, s.rng, e.config.VerifySamples)
	if err != nil {
		return fmt.Errorf("translation self test: %w", err)
	}

	err = e.makeUncacheable(s)
	if err != nil {
		return err
	}

	h := hammer.MakeBuilder().
		WithBackend(e.backend).
		WithTiming(e.config.Timing).
		Build()

	s.runner, err = e.patternRunner(s, h)
	if err != nil {
		return err
	}

	err = e.calibrate(s, h)
	if err != nil {
		return err
	}

	return e.openOutputs(s, runID, h.Backend())
}

func (e *Experiment) prepareBuffer(s *session) error {
	s.buf = e.buffer
	if s.buf == nil {
		buf, err := buffer.Allocate(e.config.BufferSize, e.config.Backing)
		if err != nil {
			return err
		}

		s.buf = buf
		s.onClose(func() {
			if err := buf.Release(); err != nil {
				klog.Errorf("releasing buffer: %v", err)
			}
		})
	}

	s.fill = fill.Parse(e.config.Fill, e.config.Seed)
	s.buf.Fill(s.fill)

	klog.Infof("Buffer of %d bytes (%s) filled with %s",
		s.buf.Size(), s.buf.Backing(), fill.Detail(s.fill))

	return nil
}

func (e *Experiment) openTranslator(s *session) (pagemap.Translator, error) {
	switch {
	case e.translator != nil:
		return e.translator, nil
	case e.config.Simulate:
		klog.Infof("Simulating physical addresses from 0x%x",
			SimulatedPhysicalBase)

		return pagemap.NewContiguousTranslator(
			s.buf.Base(), s.buf.Size(), SimulatedPhysicalBase), nil
	}

	pm, err := pagemap.OpenPagemap()
	if err != nil {
		return nil, err
	}

	s.onClose(func() {
		if err := pm.Close(); err != nil {
			klog.Errorf("closing pagemap: %v", err)
		}
	})

	return pm, nil
}

func (e *Experiment) makeUncacheable(s *session) error {
	if !e.config.Uncacheable {
		return nil
	}

	state, err := e.cacheability.SetUncacheable(s.buf)
	if err != nil {
		return fmt.Errorf("making buffer uncacheable: %w", err)
	}

	s.onClose(func() {
		if err := e.cacheability.Restore(s.buf, state); err != nil {
			klog.Errorf("restoring cacheability: %v", err)
		}
	})

	klog.Info("Buffer made uncacheable")

	return nil
}

func (e *Experiment) patternRunner(
	s *session,
	h *hammer.Hammerer,
) (PatternRunner, error) {
	if e.runner != nil {
		return e.runner, nil
	}

	geo, err := e.config.geometry()
	if err != nil {
		return nil, err
	}

	g, err := pattern.MakeBuilder().
		WithHammerer(h).
		WithNavigator(rownav.NewNavigator(geo, s.table)).
		WithRegion(s.table).
		WithRand(s.rng).
		WithConfig(e.config.Hammer).
		WithSides(e.config.Sides).
		Build()
	if err != nil {
		return nil, err
	}

	return g, nil
}

func (e *Experiment) calibrate(s *session, h *hammer.Hammerer) error {
	if e.config.CalibrationIterations == 0 {
		return nil
	}

	target, err := s.runner.RandomAddress()
	if err != nil {
		return fmt.Errorf("picking the calibration address: %w", err)
	}

	results, err := calibrate.MakeBuilder().
		WithHammerer(h).
		WithCounterSink(e.counterSink).
		WithIterations(e.config.CalibrationIterations).
		Build().
		Measure(target)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.report, "Instruction timing at %s:\n", target)

	return calibrate.WriteTable(e.report, results)
}

func (e *Experiment) openOutputs(
	s *session,
	runID string,
	backend memop.Backend,
) error {
	c := e.config

	if e.results != nil {
		err := e.results.WriteHeader(resultlog.Header{
			BufferSize:  s.buf.Size(),
			Backing:     s.buf.Backing().String(),
			Pattern:     c.Pattern.String(),
			Iterations:  c.Iterations,
			Activations: c.Hammer.Iterations,
			Operation:   c.Hammer.Operation.String(),
			CacheOp:     c.Hammer.CacheOp.String(),
			Barrier:     c.Hammer.Barrier,
			Uncacheable: c.Uncacheable,
			Fill:        s.fill.Name(),
			Seed:        c.Seed,
			Sides:       c.Sides,
			Profile:     c.profileLabel(),
		})
		if err != nil {
			return err
		}
	}

	if e.recorder != nil {
		host := readHostInfo()
		s.runRec = datarecording.NewRunRecorder(e.recorder, datarecording.RunEntry{
			RunID:       runID,
			StartTime:   e.clock().Format(time.RFC3339),
			Host:        host.name,
			Kernel:      host.kernel,
			Backend:     backend.Name(),
			Profile:     c.profileLabel(),
			Pattern:     c.Pattern.String(),
			BufferSize:  int64(s.buf.Size()),
			Backing:     s.buf.Backing().String(),
			Iterations:  int64(c.Iterations),
			Activations: int64(c.Hammer.Iterations),
			Operation:   c.Hammer.Operation.String(),
			CacheOp:     c.Hammer.CacheOp.String(),
			Barrier:     c.Hammer.Barrier,
			Uncacheable: c.Uncacheable,
			Fill:        s.fill.Name(),
			Seed:        strconv.FormatUint(c.Seed, 10),
			Sides:       c.Sides,
		})
	}

	if e.monitor != nil {
		e.monitor.RegisterConfig(&e.config)
		s.bar = e.monitor.CreateProgressBar("trials", c.Iterations)
		s.onClose(func() { e.monitor.CompleteProgressBar(s.bar) })
	}

	return nil
}

func (e *Experiment) loop(s *session, summary *Summary) error {
	var consecutive uint64

	bar := newTerminalProgress(e.progress, e.config.Iterations)
	defer bar.finish()

	for summary.Trials < e.config.Iterations {
		a, err := s.runner.RandomAddress()
		if err != nil {
			return fmt.Errorf("picking an aggressor: %w", err)
		}

		res, err := s.runner.Run(e.config.Pattern, a)
		if errors.Is(err, pattern.ErrNoNeighbor) {
			summary.Skipped++
			consecutive++
			e.countSkip(s)

			if e.config.MaxConsecutiveSkips > 0 &&
				consecutive >= e.config.MaxConsecutiveSkips {
				return fmt.Errorf("%w: %d in a row, last at %s",
					ErrTooManySkips, consecutive, a)
			}

			continue
		}

		if err != nil {
			return err
		}

		consecutive = 0

		scanStart := e.clock()
		records := s.detector.Scan(s.buf, s.fill)
		scanTime := e.clock().Sub(scanStart)

		err = e.recordTrial(s, summary, a, res, records, scanTime)
		if err != nil {
			return err
		}

		summary.Trials++
		bar.update(summary.Trials, summary.Flips)
	}

	return nil
}

func (e *Experiment) countSkip(s *session) {
	e.metrics.skips.Inc()

	if s.bar != nil {
		s.bar.IncrementSkipped(1)
	}
}

func (e *Experiment) recordTrial(
	s *session,
	summary *Summary,
	a pagemap.Address,
	res pattern.Result,
	records []bitflip.Record,
	scanTime time.Duration,
) error {
	trial := summary.Trials
	perAccess := res.PerAccess(e.config.Hammer.Iterations)
	dropped := s.detector.Dropped()

	summary.Flips += uint64(len(records))
	summary.Dropped += dropped

	e.metrics.trials.Inc()
	e.metrics.dropped.Add(float64(dropped))
	e.metrics.scan.Observe(scanTime.Seconds())
	if e.config.Timing {
		e.metrics.perAccess.Observe(float64(perAccess))
	}

	for _, r := range records {
		err := e.recordFlip(s, trial, a, r)
		if err != nil {
			return err
		}
	}

	if s.runRec != nil {
		s.runRec.RecordTrial(datarecording.TrialEntry{
			Trial:       int64(trial),
			AggressorVA: datarecording.Hex(uint64(a.Virtual)),
			AggressorPA: datarecording.Hex(a.Physical),
			Sides:       res.Sides,
			Nanoseconds: int64(res.Nanoseconds),
			PerAccessNs: int64(perAccess),
			Flips:       len(records),
			ScanMs:      float64(scanTime.Microseconds()) / 1000,
		})
	}

	if s.bar != nil {
		s.bar.IncrementFinished(1)
	}

	return nil
}

func (e *Experiment) recordFlip(
	s *session,
	trial uint64,
	a pagemap.Address,
	r bitflip.Record,
) error {
	klog.V(1).Infof("Bitflip at %s, hammered address %s, trial %d", r, a, trial)

	e.metrics.flips.WithLabelValues(r.Direction.String()).Inc()

	if e.results != nil {
		err := e.results.WriteFlip(resultlog.Flip{
			Iteration: trial,
			Aggressor: a,
			Record:    r,
		})
		if err != nil {
			return err
		}
	}

	if s.runRec != nil {
		s.runRec.RecordBitflip(datarecording.BitflipEntry{
			Trial:       int64(trial),
			AggressorVA: datarecording.Hex(uint64(a.Virtual)),
			AggressorPA: datarecording.Hex(a.Physical),
			VA:          datarecording.Hex(uint64(r.Address.Virtual)),
			PA:          datarecording.Hex(r.Address.Physical),
			Expected:    datarecording.Hex(r.Expected),
			Actual:      datarecording.Hex(r.Actual),
			Bit:         r.BitPosition,
			Direction:   r.Direction.String(),
		})
	}

	if e.monitor != nil {
		e.monitor.RecordFlip(monitoring.FlipView{
			Trial:       trial,
			AggressorVA: datarecording.Hex(uint64(a.Virtual)),
			AggressorPA: datarecording.Hex(a.Physical),
			VA:          datarecording.Hex(uint64(r.Address.Virtual)),
			PA:          datarecording.Hex(r.Address.Physical),
			Expected:    datarecording.Hex(r.Expected),
			Actual:      datarecording.Hex(r.Actual),
			Bit:         r.BitPosition,
			Direction:   r.Direction.String(),
		})
	}

	return nil
}

func (e *Experiment) finish(s *session, summary Summary) {
	if e.results != nil {
		err := e.results.WriteSummary(summary.Trials, summary.Skipped,
			summary.Dropped)
		if err != nil {
			klog.Errorf("writing summary: %v", err)
		}
	}

	if s.runRec != nil {
		s.runRec.Flush()
	}

	fmt.Fprintf(e.report,
		"Run %s: %d trials, %d skipped, %d flips (%d unrecorded) in %s\n",
		summary.RunID, summary.Trials, summary.Skipped, summary.Flips,
		summary.Dropped, summary.Elapsed.Round(time.Millisecond))
}
