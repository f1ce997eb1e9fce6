package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// State is the progress of a pipeline run.
type State string

const (
	StateIdle        State = "Idle"
	StateEnumerating State = "Enumerating"
	StateCorrelating State = "Correlating"
	StateWriting     State = "Writing"
	StateCompleted   State = "Completed"
	StateFailedWrite State = "FailedWrite"
)

// Exit codes of the sampler binaries.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitWriteFailed = 2
)

// Result is the outcome of one run. Err is set only in StateFailedWrite.
type Result struct {
	Pipeline string
	State    State
	Path     string
	Records  int
	Warnings []error
	Duration time.Duration
	Err      error
}

// ExitCode maps the result to the exit code of the binary.
func (r *Result) ExitCode() int {
	if r.State == StateFailedWrite {
		return ExitWriteFailed
	}
	return ExitOK
}

func (r *Result) transition(to State, logger *zap.Logger) {
	logger.Debug("state changed", zap.String("from", string(r.State)), zap.String("to", string(to)))
	r.State = to
}
