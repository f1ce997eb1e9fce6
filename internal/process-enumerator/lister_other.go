//go:build !windows && !linux
// +build !windows,!linux

package process_enumerator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
)

type unsupportedLister struct{}

// NewLister returns the process lister of this platform.
func NewLister() ProcessLister {
	return unsupportedLister{}
}

func (unsupportedLister) ListProcesses(context.Context) ([]common.RawProcessEntry, error) {
	return nil, fmt.Errorf("process listing is not supported on this platform: %w", errors.ErrUnsupported)
}
