package session_enumerator

import (
	"context"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"go.uber.org/zap"
)

// Snapshot is the session table as read by one run.
type Snapshot struct {
	// Sessions keeps the listing order
	Sessions []common.SessionDescriptor
	// ByID indexes Sessions by session id
	ByID common.SessionMap
	// Skipped counts lines that matched no known shape, headers included
	Skipped int
	// Err is the listing error, if the table could not be read
	Err error
}

type Enumerator struct {
	lister   SessionLister
	logger   *zap.Logger
	location *time.Location
}

// NewEnumerator creates an Enumerator. Logon times are read in loc.
func NewEnumerator(lister SessionLister, logger *zap.Logger, loc *time.Location) *Enumerator {
	if loc == nil {
		loc = time.Local
	}
	return &Enumerator{
		lister:   lister,
		logger:   logger,
		location: loc,
	}
}

// Enumerate reads the session table. It never fails: a listing error
// is logged and recorded in an otherwise empty snapshot.
func (e *Enumerator) Enumerate(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Sessions: make([]common.SessionDescriptor, 0),
		ByID:     make(common.SessionMap),
	}

	lines, err := e.lister.ListSessions(ctx)
	if err != nil {
		e.logger.Error("failed to list sessions", zap.Error(err))
		snap.Err = err
		return snap
	}

	for _, line := range lines {
		desc, ok := ParseLine(line, e.location)
		if !ok {
			snap.Skipped++
			continue
		}
		if _, dup := snap.ByID[desc.SessionID]; dup {
			e.logger.Warn("duplicate session id in listing", zap.Int("sessionId", desc.SessionID))
			continue
		}
		snap.Sessions = append(snap.Sessions, desc)
		snap.ByID[desc.SessionID] = desc
	}

	e.logger.Info("enumerated sessions", zap.Int("sessions", len(snap.Sessions)), zap.Int("skipped", snap.Skipped))
	return snap
}
