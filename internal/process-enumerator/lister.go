package process_enumerator

import (
	"context"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
)

// ProcessLister returns the live process table.
// A non-nil error together with a non-empty slice means the listing is
// partial: the returned entries are valid, the error describes the rest.
type ProcessLister interface {
	ListProcesses(ctx context.Context) ([]common.RawProcessEntry, error)
}

// ProcessListerFunc adapts a function to ProcessLister.
type ProcessListerFunc func(ctx context.Context) ([]common.RawProcessEntry, error)

func (f ProcessListerFunc) ListProcesses(ctx context.Context) ([]common.RawProcessEntry, error) {
	return f(ctx)
}
