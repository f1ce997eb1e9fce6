package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"github.com/cybozu-go/avd-usage-collector/internal/config"
	"github.com/cybozu-go/avd-usage-collector/internal/correlator"
	"github.com/cybozu-go/avd-usage-collector/internal/pipeline"
	process_enumerator "github.com/cybozu-go/avd-usage-collector/internal/process-enumerator"
	record_writer "github.com/cybozu-go/avd-usage-collector/internal/record-writer"
	"github.com/cybozu-go/avd-usage-collector/internal/runlog"
	session_enumerator "github.com/cybozu-go/avd-usage-collector/internal/session-enumerator"
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

	cfg, err := config.Parse("process-sampler", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return pipeline.ExitOK
	}
	if err != nil {
		bootstrap.Error("failed to load configuration", zap.Error(err))
		return pipeline.ExitConfig
	}

	logPath := cfg.LogPath(common.PipelineProcesses)
	logger, closeLog, err := runlog.New(logPath, runlog.Options{Stderr: cfg.LogStderr})
	if err != nil {
		bootstrap.Error("failed to open log", zap.String("path", logPath), zap.Error(err))
		return pipeline.ExitWriteFailed
	}
	defer closeLog()

	filter, err := process_enumerator.NewFilter(cfg.ExcludedImages, cfg.SystemAccountPatterns)
	if err != nil {
		logger.Error("invalid process filter", zap.Error(err))
		return pipeline.ExitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.NewProcessPipeline(
		session_enumerator.NewEnumerator(session_enumerator.NewLister(), logger, nil),
		process_enumerator.NewEnumerator(process_enumerator.NewLister(), filter, logger),
		correlator.NewCorrelator(cfg.HostName, logger),
		record_writer.NewWriter(cfg.ProcessOutputDir(), cfg.ProcessPrefix, logger),
		logger,
	)
	p.MetricsPath = cfg.MetricsPath(common.PipelineProcesses)
	return p.Run(ctx).ExitCode()
}
