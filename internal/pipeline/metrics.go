package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "avd_usage"

// runMetrics are the metrics of a single run, kept on their own registry
// since every run is a separate process.
type runMetrics struct {
	registry       *prometheus.Registry
	recordsWritten prometheus.Gauge
	warnings       *prometheus.CounterVec
	duration       prometheus.Gauge
	success        prometheus.Gauge
	lastRun        prometheus.Gauge
}

func newRunMetrics(pipeline string) *runMetrics {
	labels := map[string]string{"pipeline": pipeline}
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		recordsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "records_written",
			Help:        "Number of records written by the last run",
			ConstLabels: labels,
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "warnings_total",
			Help:        "Number of skipped or degraded items in the last run",
			ConstLabels: labels,
		}, []string{"stage"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "run_duration_seconds",
			Help:        "Duration of the last run in seconds",
			ConstLabels: labels,
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "last_run_success",
			Help:        "1 if the last run wrote its output, 0 otherwise",
			ConstLabels: labels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time of the last run",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.recordsWritten, m.warnings, m.duration, m.success, m.lastRun)
	return m
}

// writeTextfile exports g for a textfile collector. Failures are only logged.
func writeTextfile(path string, g prometheus.Gatherer, logger *zap.Logger) {
	if path == "" {
		return
	}
	err := func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
		return prometheus.WriteToTextfile(path, g)
	}()
	if err != nil {
		logger.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
	}
}
