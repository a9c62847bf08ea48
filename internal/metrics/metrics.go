// Package metrics holds the Prometheus counters of one normalization run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"corpusnorm/internal/models"
)

const namespace = "corpusnorm"

// Metrics is a per-run registry. Counters are safe for use by concurrent workers.
type Metrics struct {
	registry *prometheus.Registry

	recordsRead     *prometheus.CounterVec
	recordsAccepted *prometheus.CounterVec
	recordsSkipped  *prometheus.CounterVec
	findings        *prometheus.CounterVec
	filesFailed     *prometheus.CounterVec
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// New creates and registers the run metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.recordsRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_read_total",
		Help:      "Rows read from input files",
	}, []string{"source"})
	m.recordsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_accepted_total",
		Help:      "Rows that passed schema validation",
	}, []string{"source"})
	m.recordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Rows left out of the output, by reason",
	}, []string{"source", "reason"})
	m.findings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_total",
		Help:      "Reported findings by kind and severity",
	}, []string{"kind", "severity"})
	m.filesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_failed_total",
		Help:      "Input files that could not be read",
	}, []string{"source"})
	m.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last completed run",
	})

	m.registry.MustRegister(
		m.recordsRead, m.recordsAccepted, m.recordsSkipped,
		m.findings, m.filesFailed, m.runDuration, m.lastRun,
	)

	return m
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRead counts one input row.
func (m *Metrics) RecordRead(source string) {
	m.recordsRead.WithLabelValues(source).Inc()
}

// RecordAccepted counts one valid record.
func (m *Metrics) RecordAccepted(source string) {
	m.recordsAccepted.WithLabelValues(source).Inc()
}

// RecordSkipped counts one record left out of the output.
func (m *Metrics) RecordSkipped(source string, reason models.FindingKind) {
	m.recordsSkipped.WithLabelValues(source, string(reason)).Inc()
}

// Finding counts one reported finding.
func (m *Metrics) Finding(f models.Finding) {
	m.findings.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
}

// FileFailed counts one unreadable input file.
func (m *Metrics) FileFailed(source string) {
	m.filesFailed.WithLabelValues(source).Inc()
}

// ObserveRun records the duration of a completed run.
func (m *Metrics) ObserveRun(d time.Duration) {
	m.runDuration.Set(d.Seconds())
	m.lastRun.SetToCurrentTime()
}

// WriteTextfile writes the registry in text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	return nil
}
