// Package metrics records per-run fetch counters and durations and exports
// them in the Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.trai.ch/zerr"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	runTotal      *prometheus.CounterVec
	runDuration   prometheus.Histogram
	packages      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ziplock_fetch_total",
				Help: "Number of vendored packages by source kind and result.",
			},
			[]string{"kind", "result"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ziplock_fetch_duration_seconds",
				Help:    "Time taken to vendor one package.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		runTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ziplock_run_total",
				Help: "Number of vendoring runs by result.",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ziplock_run_duration_seconds",
				Help:    "Time taken by a whole vendoring run.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		packages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ziplock_packages",
				Help: "Number of packages dispatched by the last run.",
			},
		),
	}
	m.registry.MustRegister(m.fetchTotal, m.fetchDuration, m.runTotal, m.runDuration, m.packages)
	return m
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveFetch records one archiver operation of the given source kind.
func (m *Metrics) ObserveFetch(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(kind, result(err)).Inc()
	m.fetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRun records a finished run that dispatched packages operations.
func (m *Metrics) ObserveRun(err error, packages int, d time.Duration) {
	if m == nil {
		return
	}
	m.runTotal.WithLabelValues(result(err)).Inc()
	m.runDuration.Observe(d.Seconds())
	m.packages.Set(float64(packages))
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile atomically writes every metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write metrics"), "file", path)
	}
	return nil
}
