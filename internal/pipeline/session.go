package pipeline

import (
	"context"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"github.com/cybozu-go/avd-usage-collector/internal/correlator"
	record_writer "github.com/cybozu-go/avd-usage-collector/internal/record-writer"
	session_enumerator "github.com/cybozu-go/avd-usage-collector/internal/session-enumerator"
	"go.uber.org/zap"
)

// SessionPipeline samples the session table.
type SessionPipeline struct {
	Sessions    *session_enumerator.Enumerator
	Correlator  *correlator.Correlator
	Writer      *record_writer.Writer
	MetricsPath string
	Now         func() time.Time
	logger      *zap.Logger
}

func NewSessionPipeline(
	sessions *session_enumerator.Enumerator,
	corr *correlator.Correlator,
	writer *record_writer.Writer,
	logger *zap.Logger,
) *SessionPipeline {
	return &SessionPipeline{
		Sessions:   sessions,
		Correlator: corr,
		Writer:     writer,
		Now:        time.Now,
		logger:     logger,
	}
}

// Run performs one run, see ProcessPipeline.Run.
func (p *SessionPipeline) Run(ctx context.Context) *Result {
	start := p.Now()
	metrics := newRunMetrics(common.PipelineSessions)
	res := &Result{Pipeline: common.PipelineSessions, State: StateIdle, Warnings: make([]error, 0)}
	p.logger.Info("starting session sampling")

	res.transition(StateEnumerating, p.logger)
	capturedAt := start.UTC()
	snap := p.Sessions.Enumerate(ctx)
	if snap.Err != nil {
		res.addWarnings(metrics, "enumerate", snap.Err)
	}

	res.transition(StateCorrelating, p.logger)
	obs := p.Correlator.CorrelateSessions(capturedAt, snap.Sessions)

	res.transition(StateWriting, p.logger)
	path, err := p.Writer.Write(common.Rows(obs))
	res.Path = path
	finish(res, metrics, err, len(obs), p.Now().Sub(start), p.logger)
	writeTextfile(p.MetricsPath, metrics.registry, p.logger)
	return res
}
