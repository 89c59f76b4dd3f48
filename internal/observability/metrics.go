package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "bcfishobs"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	DownloadBytes    prometheus.Counter
	DownloadDuration *prometheus.HistogramVec // labels: source={archive,catalogue}
	LayersLoaded     prometheus.Counter

	ScriptDuration   *prometheus.HistogramVec // labels: script
	ScriptErrors     *prometheus.CounterVec   // labels: script
	SpeciesProcessed prometheus.Counter

	RunRunning  prometheus.Gauge
	LastSuccess prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.gatherer = prometheus.DefaultGatherer

	prometheus.MustRegister(
		m.DownloadBytes,
		m.DownloadDuration,
		m.LayersLoaded,
		m.ScriptDuration,
		m.ScriptErrors,
		m.SpeciesProcessed,
		m.RunRunning,
		m.LastSuccess,
	)

	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.DownloadBytes,
		m.DownloadDuration,
		m.LayersLoaded,
		m.ScriptDuration,
		m.ScriptErrors,
		m.SpeciesProcessed,
		m.RunRunning,
		m.LastSuccess,
	)
	m.gatherer = reg
	return m
}

func newMetrics() *Metrics {
	return &Metrics{
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes written to disk by downloads.",
		}),
		DownloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of a complete file download, including retries.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),
		LayersLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layers_loaded_total",
			Help:      "Total layers loaded into Postgres with ogr2ogr.",
		}),
		ScriptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_duration_seconds",
			Help:      "Duration of a SQL script execution.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"script"}),
		ScriptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "script_errors_total",
			Help:      "SQL script executions that returned an error.",
		}, []string{"script"}),
		SpeciesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "species_processed_total",
			Help:      "Species codes for which maximal events were tagged.",
		}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_running",
			Help:      "1 while a command is running, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last command that completed without error.",
		}),
	}
}

// Push sends the current metric values to a Prometheus Pushgateway, grouped
// by command so download and process runs do not overwrite each other.
func (m *Metrics) Push(ctx context.Context, url, command string) error {
	err := push.New(url, namespace).
		Gatherer(m.gatherer).
		Grouping("command", command).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
