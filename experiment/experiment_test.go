package experiment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/hammerbed/datarecording"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/hammer/memop"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
	"github.com/sarchlab/hammerbed/monitoring"
	"github.com/sarchlab/hammerbed/pattern"
	"github.com/sarchlab/hammerbed/resultlog"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Core = -1
	c.Simulate = true
	c.Seed = 1
	c.Profile = "linear"

	return c
}

var _ = Describe("Experiment", func() {
	var (
		mockCtrl *gomock.Controller
		runner   *MockPatternRunner
		dir      string
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		runner = NewMockPatternRunner(mockCtrl)
		dir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should reject runs without iterations", func() {
		c := testConfig()
		c.Iterations = 0

		_, err := MakeBuilder().WithConfig(c).Build().Run()

		Expect(err).To(HaveOccurred())
	})

	Context("with a scripted pattern runner", func() {
		var (
			buf     *buffer.Buffer
			results *resultlog.Writer
			monitor *monitoring.Monitor
			reg     *prometheus.Registry
			c       Config
		)

		BeforeEach(func() {
			var err error
			buf, err = buffer.Allocate(64<<10, buffer.Standard)
			Expect(err).NotTo(HaveOccurred())

			results, err = resultlog.Create(filepath.Join(dir, "flips.txt"))
			Expect(err).NotTo(HaveOccurred())

			monitor = monitoring.NewMonitor()
			reg = prometheus.NewRegistry()

			c = testConfig()
			c.BufferSize = buf.Size()
			c.Pattern = pattern.Double
			c.Iterations = 3
		})

		AfterEach(func() {
			Expect(results.Close()).To(Succeed())
			Expect(buf.Release()).To(Succeed())
		})

		build := func() *Experiment {
			return MakeBuilder().
				WithConfig(c).
				WithBuffer(buf).
				WithPatternRunner(runner).
				WithResultWriter(results).
				WithMonitor(monitor).
				WithRegisterer(reg).
				Build()
		}

		It("should resample rejected aggressors without counting them", func() {
			aggressor := pagemap.Address{
				Virtual:  buf.Base() + 0x2000,
				Physical: SimulatedPhysicalBase + 0x2000,
			}
			ok := pattern.Result{Nanoseconds: 1000, Sides: 2}
			victim := buf.Base() + 0x18

			runner.EXPECT().RandomAddress().Return(aggressor, nil).Times(5)
			gomock.InOrder(
				runner.EXPECT().Run(pattern.Double, aggressor).
					Return(pattern.Result{}, pattern.ErrNoNeighbor),
				runner.EXPECT().Run(pattern.Double, aggressor).
					Return(pattern.Result{}, fmt.Errorf("wrapped: %w", pattern.ErrNoNeighbor)),
				runner.EXPECT().Run(pattern.Double, aggressor).
					DoAndReturn(func(pattern.Kind, pagemap.Address) (pattern.Result, error) {
						*memop.Word(victim) ^= 1 << 3
						return ok, nil
					}),
				runner.EXPECT().Run(pattern.Double, aggressor).Return(ok, nil),
				runner.EXPECT().Run(pattern.Double, aggressor).Return(ok, nil),
			)

			e := build()
			summary, err := e.Run()

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Trials).To(Equal(uint64(3)))
			Expect(summary.Skipped).To(Equal(uint64(2)))
			Expect(summary.Flips).To(Equal(uint64(1)))
			Expect(summary.RunID).NotTo(BeEmpty())
			Expect(*memop.Word(victim)).To(Equal(uint64(0xAAAAAAAA)))

			Expect(testutil.ToFloat64(e.metrics.trials)).To(Equal(3.0))
			Expect(testutil.ToFloat64(e.metrics.skips)).To(Equal(2.0))
			Expect(testutil.ToFloat64(
				e.metrics.flips.WithLabelValues("1->0"))).To(Equal(1.0))

			data, err := os.ReadFile(results.Path())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(fmt.Sprintf(
				"Iter: 0, Aggr_v: 0x%x, Aggr_p: 0x%x, Virtual: 0x%x, Physical: 0x%x, "+
					"Expected: 0xaaaaaaaa, Actual: 0xaaaaaaa2, "+
					"Bit_pos: 3, Direction: 1->0\n",
				aggressor.Virtual, aggressor.Physical,
				victim, uint64(SimulatedPhysicalBase+0x18))))
			Expect(string(data)).To(ContainSubstring("Skipped: 2\n"))
		})

		It("should give up after too many consecutive skips", func() {
			c.MaxConsecutiveSkips = 10

			runner.EXPECT().RandomAddress().
				Return(pagemap.Address{Virtual: buf.Base()}, nil).Times(10)
			runner.EXPECT().Run(gomock.Any(), gomock.Any()).
				Return(pattern.Result{}, pattern.ErrNoNeighbor).Times(10)

			summary, err := build().Run()

			Expect(err).To(MatchError(ErrTooManySkips))
			Expect(summary.Trials).To(BeZero())
			Expect(summary.Skipped).To(Equal(uint64(10)))
		})

		It("should stop on hammering errors", func() {
			runner.EXPECT().RandomAddress().
				Return(pagemap.Address{Virtual: buf.Base()}, nil)
			runner.EXPECT().Run(gomock.Any(), gomock.Any()).
				Return(pattern.Result{}, hammer.ErrInvalidTarget)

			_, err := build().Run()

			Expect(err).To(MatchError(hammer.ErrInvalidTarget))
		})

		It("should fail when the buffer cannot be made uncacheable", func() {
			c.Uncacheable = true

			_, err := build().Run()

			Expect(err).To(MatchError(buffer.ErrCacheabilityUnsupported))
		})

		It("should print the calibration table", func() {
			c.Iterations = 1
			c.CalibrationIterations = 100

			a := pagemap.Address{
				Virtual:  buf.Base() + 0x100,
				Physical: SimulatedPhysicalBase + 0x100,
			}
			runner.EXPECT().RandomAddress().Return(a, nil).Times(2)
			runner.EXPECT().Run(gomock.Any(), a).
				Return(pattern.Result{Sides: 2}, nil)

			report := new(bytes.Buffer)
			_, err := MakeBuilder().
				WithConfig(c).
				WithBuffer(buf).
				WithPatternRunner(runner).
				WithReportOutput(report).
				Build().
				Run()

			Expect(err).NotTo(HaveOccurred())
			Expect(report.String()).To(ContainSubstring("NS/ACCESS"))
			Expect(report.String()).To(ContainSubstring("1 trials, 0 skipped"))
		})
	})

	It("should skip quad patterns that leave a 4 KiB table", func() {
		c := testConfig()
		c.BufferSize = pagemap.PageSize
		c.Pattern = pattern.Quad
		c.Iterations = 1
		c.MaxConsecutiveSkips = 50
		c.VerifySamples = 10

		summary, err := MakeBuilder().WithConfig(c).Build().Run()

		Expect(err).To(MatchError(ErrTooManySkips))
		Expect(summary.Trials).To(BeZero())
		Expect(summary.Skipped).To(Equal(uint64(50)))
	})

	It("should run 100 double-sided trials on 8 MiB", func() {
		if testing.Short() {
			Skip("long end-to-end run")
		}

		c := testConfig()
		c.Profile = "tegra-x1"
		c.BufferSize = 8 << 20
		c.Pattern = pattern.Double
		c.Iterations = 100
		c.Hammer = hammer.Config{
			Iterations: 50_000,
			Operation:  hammer.OpLoad,
			CacheOp:    memop.CacheOpCleanInvalidate,
			Barrier:    true,
		}
		c.Fill = "aa"

		results, err := resultlog.Create(filepath.Join(dir, "e2e.txt"))
		Expect(err).NotTo(HaveOccurred())

		recorder, err := datarecording.New(filepath.Join(dir, "e2e.sqlite3"))
		Expect(err).NotTo(HaveOccurred())

		summary, err := MakeBuilder().
			WithConfig(c).
			WithResultWriter(results).
			WithDataRecorder(recorder).
			Build().
			Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(results.Close()).To(Succeed())
		Expect(recorder.Close()).To(Succeed())
		Expect(summary.Trials).To(Equal(uint64(100)))

		data, err := os.ReadFile(results.Path())
		Expect(err).NotTo(HaveOccurred())
		content := string(data)
		Expect(content).To(HavePrefix("Buffer Size: 8388608\n"))
		Expect(content).To(ContainSubstring("Hammer Pattern: double\n"))
		Expect(content).To(ContainSubstring("Iterations: 100\n"))
		Expect(content).To(ContainSubstring("Hammer Iterations: 50000\n"))
		Expect(content).To(ContainSubstring("Fill Pattern: aa\n"))
		Expect(content).To(ContainSubstring("Geometry: tegra-x1\n"))
		Expect(strings.Count(content, "Iter: ")).To(Equal(int(summary.Flips)))

		reader, err := datarecording.NewReader(filepath.Join(dir, "e2e.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(datarecording.TrialsTable, datarecording.TrialEntry{})
		trials, total, err := reader.Query(context.Background(),
			datarecording.TrialsTable,
			datarecording.QueryParams{
				Where: "RunID = ?",
				Args:  []any{summary.RunID},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(100))
		Expect(trials[0].(*datarecording.TrialEntry).Sides).To(Equal(2))
	})
})
