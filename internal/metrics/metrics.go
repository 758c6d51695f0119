package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundlekit_build_failed_total",
			Help: "Number of builds that failed, by failure reason",
		},
		[]string{"reason"},
	)

	BuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bundlekit_build_count_total",
			Help: "Total number of builds run",
		},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bundlekit_build_duration_seconds",
			Help:    "Build duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
	)

	CompilationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bundlekit_compilation_duration_seconds",
			Help:    "Duration of one compiler invocation in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	UnitsCompiled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bundlekit_units_compiled_total",
			Help: "Total number of source units passed to the compiler",
		},
	)

	Diagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundlekit_diagnostics_total",
			Help: "Total number of compiler diagnostics, by severity",
		},
		[]string{"severity"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bundlekit_cache_hits_total",
			Help: "Total number of compilations replayed from the cache",
		},
	)

	LastBuildEnd = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bundlekit_last_build_end_timestamp",
			Help: "Unix timestamp of when the last build ended",
		},
	)
)

// WriteFile writes the current value of every registered metric to path
// in the Prometheus text format.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
