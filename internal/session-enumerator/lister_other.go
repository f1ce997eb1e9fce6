//go:build !windows
// +build !windows

package session_enumerator

import (
	"context"
	"errors"
	"fmt"
)

type unsupportedLister struct{}

// NewLister returns the session lister of this platform.
// Only Windows has a terminal services session table; elsewhere every
// listing fails and the process pipeline falls back to synthesized names.
func NewLister() SessionLister {
	return unsupportedLister{}
}

func (unsupportedLister) ListSessions(context.Context) ([]string, error) {
	return nil, fmt.Errorf("session listing is only supported on Windows: %w", errors.ErrUnsupported)
}
