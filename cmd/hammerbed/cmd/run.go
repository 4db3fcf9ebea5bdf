package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"k8s.io/klog/v2"

	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/calibrate"
	"github.com/sarchlab/hammerbed/datarecording"
	"github.com/sarchlab/hammerbed/dram/geometry"
	"github.com/sarchlab/hammerbed/experiment"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/monitoring"
	"github.com/sarchlab/hammerbed/pattern"
	"github.com/sarchlab/hammerbed/resultlog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Hammer random aggressors and record the bit flips.",
	Long: "`run` fills a buffer with a pattern, hammers patterns of rows " +
		"around random aggressors, and scans the buffer for flipped bits " +
		"after every placement. Flips are repaired and written to the " +
		"result file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runExperiment(cmd.Flags(), time.Now())
	},
}

func init() {
	addRunFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(f *pflag.FlagSet) {
	f.Uint64P("size", "s", experiment.DefaultBufferSize/mib, "buffer size in MiB")
	f.Uint64P("iter", "i", experiment.DefaultIterations,
		"random aggressor placements")
	f.Uint64P("hammer", "n", experiment.DefaultActivations,
		"activations per placement")
	f.StringP("hammer-pattern", "H", pattern.DefaultKind.String(),
		strings.Join(pattern.KindNames(), " | "))
	f.Int("sides", pattern.DefaultSides, "aggressors of the many-sided pattern")
	f.StringP("buffer-type", "B", buffer.Standard.String(),
		strings.Join(buffer.BackingNames(), " | "))
	f.StringP("pattern", "P", fill.DefaultName,
		strings.Join(fill.Names(), " | "))
	f.StringP("seed", "S", "",
		"seed of the rand pattern, decimal or 0x-prefixed hex "+
			"(default: current time)")
	f.String("op", hammer.DefaultOperation.String(), "ldr | str | zva")
	f.String("cache-op", memop.DefaultCacheOp.String(), "none | cvac | civac")
	f.Bool("barrier", true, "add a barrier between maintenance and accesses")
	f.Bool("uncacheable", false,
		"make the buffer uncacheable; unsupported without a cacheability "+
			"controller, so the run stops with an error")
	f.BoolP("timing", "t", true, "time the hammering loops")
	f.Bool("verbose", false, "print every flip to the console")
	f.Int("core", experiment.DefaultCore,
		"logical CPU to pin the run to, negative to disable")
	f.String("profile", geometry.DefaultProfileName, "built-in geometry profile")
	f.String("profile-file", "", "YAML geometry profile, overrides --profile")
	f.StringP("output", "o", "",
		"result file (default logs/flips_YYYYMMDD_HHMMSS.txt)")
	f.String("db", "",
		"also record the run into this SQLite database, appending if it exists")
	f.Bool("monitor", false, "serve the state of the run over HTTP")
	f.Int("monitor-port", 0, "port of the monitoring server, 0 for any")
	f.Bool("open-monitor", false, "open the monitoring server in a browser")
	f.Bool("simulate", false,
		"use synthetic physical addresses instead of /proc/self/pagemap")
	f.Uint64("max-skips", experiment.DefaultMaxConsecutiveSkips,
		"consecutive rejected aggressors before giving up, 0 for no limit")
	f.Uint64("calibrate", calibrate.DefaultIterations,
		"accesses per configuration of the timing test before the run, "+
			"0 to skip it")
	f.Int("verify", experiment.DefaultVerifySamples,
		"addresses checked by the translation self test")
}

func mustGetString(flags *pflag.FlagSet, name string) string {
	v, err := flags.GetString(name)
	if err != nil {
		panic(err)
	}

	return v
}

func mustGetBool(flags *pflag.FlagSet, name string) bool {
	v, err := flags.GetBool(name)
	if err != nil {
		panic(err)
	}

	return v
}

func mustGetUint64(flags *pflag.FlagSet, name string) uint64 {
	v, err := flags.GetUint64(name)
	if err != nil {
		panic(err)
	}

	return v
}

func mustGetInt(flags *pflag.FlagSet, name string) int {
	v, err := flags.GetInt(name)
	if err != nil {
		panic(err)
	}

	return v
}

// parseSeed reads a decimal or hex seed. An empty seed is taken from the
// clock.
func parseSeed(s string, now time.Time) (uint64, error) {
	if s == "" {
		return uint64(now.Unix()), nil
	}

	seed, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seed %q: %w", s, err)
	}

	return seed, nil
}

// configFromFlags turns the flags of the run command into a configuration.
func configFromFlags(
	flags *pflag.FlagSet,
	now time.Time,
) (experiment.Config, error) {
	c := experiment.DefaultConfig()

	seed, err := parseSeed(mustGetString(flags, "seed"), now)
	if err != nil {
		return c, err
	}

	c.BufferSize = mustGetUint64(flags, "size") * mib
	c.Backing = buffer.ParseBacking(mustGetString(flags, "buffer-type"))
	c.Pattern = pattern.ParseKind(mustGetString(flags, "hammer-pattern"))
	c.Sides = mustGetInt(flags, "sides")
	c.Iterations = mustGetUint64(flags, "iter")
	c.Hammer = hammer.Config{
		Iterations: mustGetUint64(flags, "hammer"),
		Operation:  hammer.ParseOperation(mustGetString(flags, "op")),
		CacheOp:    memop.ParseCacheOp(mustGetString(flags, "cache-op")),
		Barrier:    mustGetBool(flags, "barrier"),
	}
	c.Timing = mustGetBool(flags, "timing")
	c.Fill = mustGetString(flags, "pattern")
	c.Seed = seed
	c.Profile = mustGetString(flags, "profile")
	c.ProfileFile = mustGetString(flags, "profile-file")
	c.Uncacheable = mustGetBool(flags, "uncacheable")
	c.Core = mustGetInt(flags, "core")
	c.Simulate = mustGetBool(flags, "simulate")
	c.VerifySamples = mustGetInt(flags, "verify")
	c.MaxConsecutiveSkips = mustGetUint64(flags, "max-skips")
	c.CalibrationIterations = mustGetUint64(flags, "calibrate")

	if c.BufferSize == 0 {
		return c, errors.New("buffer size must be at least 1 MiB")
	}

	return c, nil
}

func runExperiment(flags *pflag.FlagSet, now time.Time) error {
	c, err := configFromFlags(flags, now)
	if err != nil {
		return err
	}

	if mustGetBool(flags, "verbose") {
		err = flags.Set("v", "1")
		if err != nil {
			return err
		}
	}

	path := mustGetString(flags, "output")
	if path == "" {
		path = resultlog.DefaultPath(now)
	}

	results, err := resultlog.Create(path)
	if err != nil {
		return err
	}
	defer results.Close()

	fmt.Fprintf(os.Stderr,
		"Starting test: size=%d MiB, iter=%d, hammer=%d, pattern=%s, "+
			"hammer-pattern=%s, seed=0x%x, buffer=%s, file=%s\n",
		c.BufferSize/mib, c.Iterations, c.Hammer.Iterations, c.Fill,
		c.Pattern, c.Seed, c.Backing, results.Path())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	runID := xid.New().String()

	b := experiment.MakeBuilder().
		WithConfig(c).
		WithRunID(runID).
		WithResultWriter(results).
		WithRegisterer(reg).
		WithProgressOutput(progressOutput()).
		WithReportOutput(os.Stdout)

	if dbPath := mustGetString(flags, "db"); dbPath != "" {
		recorder, err := datarecording.New(dbPath)
		if err != nil {
			return err
		}
		defer recorder.Close()

		exec := datarecording.NewExecRecorder(recorder, runID)
		exec.Start()
		defer exec.End()

		b = b.WithDataRecorder(recorder)
	}

	if mustGetBool(flags, "monitor") {
		m, err := startMonitor(flags, reg)
		if err != nil {
			return err
		}

		b = b.WithMonitor(m)
	}

	_, err = runGuarded(b.Build())

	return err
}

func progressOutput() io.Writer {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	return os.Stderr
}

func startMonitor(
	flags *pflag.FlagSet,
	reg prometheus.Gatherer,
) (*monitoring.Monitor, error) {
	m := monitoring.NewMonitor().
		WithPortNumber(mustGetInt(flags, "monitor-port")).
		WithGatherer(reg)

	port, err := m.StartServer()
	if err != nil {
		return nil, err
	}

	if mustGetBool(flags, "open-monitor") {
		url := fmt.Sprintf("http://localhost:%d/api/progress", port)

		err := browser.OpenURL(url)
		if err != nil {
			klog.Warningf("cannot open %s: %v", url, err)
		}
	}

	return m, nil
}

// runGuarded runs the experiment and turns a corruption panic of the
// hammering primitives into an error, so that the exit handlers still flush
// what was recorded.
func runGuarded(e *experiment.Experiment) (summary experiment.Summary, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		ce, ok := r.(*hammer.CorruptionError)
		if !ok {
			panic(r)
		}

		err = fmt.Errorf("hammering left memory corrupted: %w", ce)
	}()

	return e.Run()
}
