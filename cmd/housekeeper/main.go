package main

import (
	"errors"
	"os"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"github.com/cybozu-go/avd-usage-collector/internal/config"
	"github.com/cybozu-go/avd-usage-collector/internal/pipeline"
	"github.com/cybozu-go/avd-usage-collector/internal/retention"
	"github.com/cybozu-go/avd-usage-collector/internal/runlog"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func newZapLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	os.Exit(run())
}

func run() int {
	bootstrap := newZapLogger()
	defer bootstrap.Sync() //nolint:errcheck

	cfg, err := config.Parse("housekeeper", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return pipeline.ExitOK
	}
	if err != nil {
		bootstrap.Error("failed to load configuration", zap.Error(err))
		return pipeline.ExitConfig
	}
	maxLogSize, err := cfg.MaxLogSizeBytes()
	if err != nil {
		bootstrap.Error("failed to load configuration", zap.Error(err))
		return pipeline.ExitConfig
	}

	logPath := cfg.LogPath(common.PipelineHousekeeping)
	logger, closeLog, err := runlog.New(logPath, runlog.Options{Stderr: cfg.LogStderr})
	if err != nil {
		bootstrap.Error("failed to open log", zap.String("path", logPath), zap.Error(err))
		return pipeline.ExitWriteFailed
	}
	defer closeLog()

	h := pipeline.NewHousekeeper(
		retention.NewSweeper(cfg.Horizon(), logger),
		retention.NewTruncator(maxLogSize, cfg.KeepRatio, logger),
		cfg.SweepDirs(),
		cfg.LogPaths(),
		logger,
	)
	h.MetricsPath = cfg.MetricsPath(common.PipelineHousekeeping)
	h.Run()
	return pipeline.ExitOK
}
