package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"github.com/cybozu-go/avd-usage-collector/internal/correlator"
	process_enumerator "github.com/cybozu-go/avd-usage-collector/internal/process-enumerator"
	record_writer "github.com/cybozu-go/avd-usage-collector/internal/record-writer"
	session_enumerator "github.com/cybozu-go/avd-usage-collector/internal/session-enumerator"
	"go.uber.org/zap"
)

var errNoProcesses = errors.New("no processes were listed")

// ProcessPipeline samples the processes of user sessions.
type ProcessPipeline struct {
	Sessions    *session_enumerator.Enumerator
	Processes   *process_enumerator.Enumerator
	Correlator  *correlator.Correlator
	Writer      *record_writer.Writer
	MetricsPath string
	Now         func() time.Time
	logger      *zap.Logger
}

func NewProcessPipeline(
	sessions *session_enumerator.Enumerator,
	processes *process_enumerator.Enumerator,
	corr *correlator.Correlator,
	writer *record_writer.Writer,
	logger *zap.Logger,
) *ProcessPipeline {
	return &ProcessPipeline{
		Sessions:   sessions,
		Processes:  processes,
		Correlator: corr,
		Writer:     writer,
		Now:        time.Now,
		logger:     logger,
	}
}

// Run performs one run. Only a failure to write the output is returned
// as an error; everything else degrades the data and is logged.
func (p *ProcessPipeline) Run(ctx context.Context) *Result {
	start := p.Now()
	metrics := newRunMetrics(common.PipelineProcesses)
	res := &Result{Pipeline: common.PipelineProcesses, State: StateIdle, Warnings: make([]error, 0)}
	p.logger.Info("starting process sampling")

	res.transition(StateEnumerating, p.logger)
	capturedAt := start.UTC()
	// the session table is read first so that it matches the processes
	snap := p.Sessions.Enumerate(ctx)
	procs := p.Processes.Enumerate(ctx)
	if snap.Err != nil {
		res.addWarnings(metrics, "enumerate", snap.Err)
	}
	res.addWarnings(metrics, "enumerate", procs.Warnings...)
	if procs.Listed == 0 {
		res.addWarnings(metrics, "enumerate", errNoProcesses)
	}

	res.transition(StateCorrelating, p.logger)
	obs, warnings := p.Correlator.CorrelateProcesses(capturedAt, snap.ByID, procs.Entries)
	res.addWarnings(metrics, "correlate", warnings...)

	res.transition(StateWriting, p.logger)
	path, err := p.Writer.Write(common.Rows(obs))
	res.Path = path
	finish(res, metrics, err, len(obs), p.Now().Sub(start), p.logger)
	writeTextfile(p.MetricsPath, metrics.registry, p.logger)
	return res
}

func (r *Result) addWarnings(metrics *runMetrics, stage string, warnings ...error) {
	r.Warnings = append(r.Warnings, warnings...)
	metrics.warnings.WithLabelValues(stage).Add(float64(len(warnings)))
}

func finish(res *Result, metrics *runMetrics, err error, records int, elapsed time.Duration, logger *zap.Logger) {
	res.Duration = elapsed
	metrics.duration.Set(elapsed.Seconds())
	metrics.lastRun.SetToCurrentTime()
	if err != nil {
		res.Err = err
		res.transition(StateFailedWrite, logger)
		metrics.success.Set(0)
		logger.Error("run failed", zap.String("path", res.Path), zap.Duration("duration", elapsed), zap.Error(err))
		return
	}
	res.Records = records
	res.transition(StateCompleted, logger)
	metrics.success.Set(1)
	metrics.recordsWritten.Set(float64(records))
	logger.Info("run completed",
		zap.String("path", res.Path),
		zap.Int("records", records),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("duration", elapsed),
	)
}
