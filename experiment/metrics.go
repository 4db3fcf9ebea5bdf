package experiment

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

const metricPrefix = "hammerbed_"

type metrics struct {
	trials    prometheus.Counter
	skips     prometheus.Counter
	flips     *prometheus.CounterVec
	dropped   prometheus.Counter
	perAccess prometheus.Histogram
	scan      prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		trials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "trials_total",
			Help: "Number of executed hammering trials",
		}),
		skips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "skipped_trials_total",
			Help: "Number of aggressors rejected because no pattern fit around them",
		}),
		flips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "bitflips_total",
			Help: "Number of recorded bit flips",
		}, []string{"direction"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "unrecorded_bitflips_total",
			Help: "Number of flipped bits repaired beyond the per-scan record limit",
		}),
		perAccess: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "access_duration_nanoseconds",
			Help:    "Average duration of one aggressor access per trial",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		scan: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "scan_duration_seconds",
			Help:    "Duration of the bit flip scan after each trial",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg == nil {
		return m
	}

	m.trials = register(reg, m.trials)
	m.skips = register(reg, m.skips)
	m.flips = register(reg, m.flips)
	m.dropped = register(reg, m.dropped)
	m.perAccess = register(reg, m.perAccess)
	m.scan = register(reg, m.scan)

	return m
}

// register returns the collector that ends up in the registry, which is the
// existing one if a previous run registered the same metric.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing
		}
	}

	klog.Warningf("cannot register metric: %v", err)

	return c
}
