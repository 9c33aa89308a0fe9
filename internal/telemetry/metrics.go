// Package telemetry records fetch and load metrics in a private Prometheus
// registry. The CLI is short-lived, so metrics are exported through the
// node_exporter textfile collector instead of an HTTP endpoint.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secret_loader"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry // nil when registered elsewhere

	fetchTotal     *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	recordsFetched prometheus.Gauge
	vaultCommands  *prometheus.CounterVec
	loadTotal      *prometheus.CounterVec
	filesLoaded    *prometheus.CounterVec
}

// New creates and registers all collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)
	m.registry = reg
	return m
}

// NewWith registers all collectors with reg. It panics when reg already holds
// them, like promauto.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_total",
				Help:      "Total number of fetch runs",
			},
			[]string{"result"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetch runs in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		recordsFetched: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_fetched",
				Help:      "Number of secret records written by the last fetch",
			},
		),
		vaultCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vault_commands_total",
				Help:      "Total number of vault CLI invocations",
			},
			[]string{"command", "result"},
		),
		loadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "load_total",
				Help:      "Total number of environment loads",
			},
			[]string{"environment", "result"},
		),
		filesLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_loaded_total",
				Help:      "Total number of secrets files applied by loads",
			},
			[]string{"environment"},
		),
	}
}

// Registry returns the private registry created by New.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordFetch records a completed fetch run.
func (m *Metrics) RecordFetch(start time.Time, records int, err error) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(result(err)).Inc()
	m.fetchDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		m.recordsFetched.Set(float64(records))
	}
}

// RecordVaultCommand records one vault CLI invocation by subcommand.
func (m *Metrics) RecordVaultCommand(command string, err error) {
	if m == nil {
		return
	}
	m.vaultCommands.WithLabelValues(command, result(err)).Inc()
}

// RecordLoad records an environment load and the number of files it applied.
func (m *Metrics) RecordLoad(environment string, files int, err error) {
	if m == nil {
		return
	}
	m.loadTotal.WithLabelValues(environment, result(err)).Inc()
	if err == nil {
		m.filesLoaded.WithLabelValues(environment).Add(float64(files))
	}
}

// WriteTextfile writes the registry in the text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if m.registry == nil {
		return fmt.Errorf("metrics are registered with an external registry")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
