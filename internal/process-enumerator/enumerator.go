package process_enumerator

import (
	"context"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"go.uber.org/zap"
)

// Result is the outcome of one enumeration.
type Result struct {
	// Entries are the retained processes in listing order
	Entries []common.RawProcessEntry
	// Listed counts every process returned by the lister
	Listed int
	// Excluded counts dropped processes by reason
	Excluded map[string]int
	// Warnings holds the listing errors, one per failed process when the
	// lister reports them joined
	Warnings []error
}

type Enumerator struct {
	lister ProcessLister
	filter *Filter
	logger *zap.Logger
}

func NewEnumerator(lister ProcessLister, filter *Filter, logger *zap.Logger) *Enumerator {
	if filter == nil {
		filter = NewDefaultFilter()
	}
	return &Enumerator{
		lister: lister,
		filter: filter,
		logger: logger,
	}
}

// Enumerate lists the processes of user sessions. Listing errors are
// logged and returned as warnings; whatever part of the listing was
// returned is still used.
func (e *Enumerator) Enumerate(ctx context.Context) *Result {
	res := &Result{
		Entries:  make([]common.RawProcessEntry, 0),
		Excluded: make(map[string]int),
		Warnings: make([]error, 0),
	}

	procs, err := e.lister.ListProcesses(ctx)
	if err != nil {
		res.Warnings = append(res.Warnings, splitErrors(err)...)
		if len(procs) == 0 {
			e.logger.Error("failed to list processes", zap.Error(err))
			return res
		}
		e.logger.Warn("process listing is partial", zap.Error(err), zap.Int("listed", len(procs)))
	}

	res.Listed = len(procs)
	for _, p := range procs {
		if reason, excluded := e.filter.Exclude(p); excluded {
			res.Excluded[reason]++
			continue
		}
		res.Entries = append(res.Entries, p)
	}

	e.logger.Info("enumerated processes",
		zap.Int("listed", res.Listed),
		zap.Int("retained", len(res.Entries)),
		zap.Int("excludedSession", res.Excluded[ReasonSession]),
		zap.Int("excludedAccount", res.Excluded[ReasonAccount]),
		zap.Int("excludedImage", res.Excluded[ReasonImage]),
	)
	return res
}

func splitErrors(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
