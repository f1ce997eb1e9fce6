package pipeline

import (
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"github.com/cybozu-go/avd-usage-collector/internal/retention"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HousekeepingResult is the outcome of one housekeeping run.
type HousekeepingResult struct {
	Deleted   []string
	Truncated []string
	Errors    []error
	Duration  time.Duration
}

// Housekeeper prunes expired files from its directories, output and
// logs alike, and truncates oversized logs.
type Housekeeper struct {
	Sweeper     *retention.Sweeper
	Truncator   *retention.Truncator
	SweepDirs   []string
	LogPaths    []string
	MetricsPath string
	logger      *zap.Logger
}

func NewHousekeeper(sweeper *retention.Sweeper, truncator *retention.Truncator, sweepDirs, logPaths []string, logger *zap.Logger) *Housekeeper {
	return &Housekeeper{
		Sweeper:   sweeper,
		Truncator: truncator,
		SweepDirs: sweepDirs,
		LogPaths:  logPaths,
		logger:     logger,
	}
}

// Run sweeps and truncates. It never fails; errors are logged and returned.
func (h *Housekeeper) Run() *HousekeepingResult {
	start := time.Now()
	h.logger.Info("starting housekeeping", zap.Strings("dirs", h.SweepDirs), zap.Duration("horizon", h.Sweeper.Horizon))

	swept := h.Sweeper.Sweep(h.SweepDirs)
	truncated, errList := h.Truncator.Truncate(h.LogPaths)

	res := &HousekeepingResult{
		Deleted:   swept.Deleted,
		Truncated: truncated,
		Errors:    append(swept.Errors, errList...),
		Duration:  time.Since(start),
	}
	h.exportMetrics(res)

	h.logger.Info("housekeeping completed",
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("truncated", len(res.Truncated)),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (h *Housekeeper) exportMetrics(res *HousekeepingResult) {
	if h.MetricsPath == "" {
		return
	}
	labels := map[string]string{"pipeline": common.PipelineHousekeeping}
	registry := prometheus.NewRegistry()
	deleted := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "files_deleted",
		Help:        "Number of expired files deleted by the last run",
		ConstLabels: labels,
	})
	truncated := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "logs_truncated",
		Help:        "Number of logs truncated by the last run",
		ConstLabels: labels,
	})
	errorsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "housekeeping_errors",
		Help:        "Number of files the last run failed to handle",
		ConstLabels: labels,
	})
	registry.MustRegister(deleted, truncated, errorsGauge)
	deleted.Set(float64(len(res.Deleted)))
	truncated.Set(float64(len(res.Truncated)))
	errorsGauge.Set(float64(len(res.Errors)))
	writeTextfile(h.MetricsPath, registry, h.logger)
}
