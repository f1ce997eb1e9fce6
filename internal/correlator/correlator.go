package correlator

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"go.uber.org/zap"
)

var ErrMalformedEntry = errors.New("malformed process entry")

// Correlator joins process entries with the session table of the same run.
type Correlator struct {
	hostName string
	logger   *zap.Logger
}

func NewCorrelator(hostName string, logger *zap.Logger) *Correlator {
	return &Correlator{
		hostName: hostName,
		logger:   logger,
	}
}

// SessionName returns the name of session id. Sessions missing from the
// table get a synthesized name.
func SessionName(sessions common.SessionMap, id int) string {
	if desc, ok := sessions[id]; ok {
		return desc.SessionName
	}
	if id == 1 {
		return common.ConsoleSessionName
	}
	return fmt.Sprintf(common.RDPSessionNameFormat, id)
}

// NormalizeImageName makes sure name carries exactly one .exe suffix.
func NormalizeImageName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToLower(name), common.ImageSuffix) {
		name = name[:len(name)-len(common.ImageSuffix)]
	}
	return name + common.ImageSuffix
}

// NewProcessRecord validates and normalizes a raw entry.
func NewProcessRecord(p common.RawProcessEntry) (common.ProcessRecord, error) {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return common.ProcessRecord{}, fmt.Errorf("%w: pid %d has no image name", ErrMalformedEntry, p.PID)
	case p.PID < 0:
		return common.ProcessRecord{}, fmt.Errorf("%w: negative pid %d", ErrMalformedEntry, p.PID)
	case p.WorkingSet < 0:
		return common.ProcessRecord{}, fmt.Errorf("%w: pid %d has negative working set %d", ErrMalformedEntry, p.PID, p.WorkingSet)
	case p.CPUTime < 0:
		return common.ProcessRecord{}, fmt.Errorf("%w: pid %d has negative cpu time %s", ErrMalformedEntry, p.PID, p.CPUTime)
	}

	username := strings.TrimSpace(p.Owner)
	if username == "" {
		username = common.NoUserName
	}

	return common.ProcessRecord{
		ImageName:      NormalizeImageName(p.Name),
		PID:            p.PID,
		SessionID:      p.SessionID,
		MemoryBytes:    p.WorkingSet,
		CPUTimeSeconds: int64(math.Round(p.CPUTime.Seconds())),
		Username:       username,
	}, nil
}

// CorrelateProcesses produces one observation per valid entry, in input
// order. Malformed entries are logged, skipped and returned as warnings.
func (c *Correlator) CorrelateProcesses(capturedAt time.Time, sessions common.SessionMap, entries []common.RawProcessEntry) ([]common.ProcessObservation, []error) {
	res := make([]common.ProcessObservation, 0, len(entries))
	warnings := make([]error, 0)

	for _, p := range entries {
		rec, err := NewProcessRecord(p)
		if err != nil {
			c.logger.Warn("skipped process entry", zap.Int("pid", p.PID), zap.Error(err))
			warnings = append(warnings, err)
			continue
		}
		res = append(res, common.ProcessObservation{
			CapturedAt:    capturedAt,
			HostName:      c.hostName,
			SessionName:   SessionName(sessions, rec.SessionID),
			ProcessRecord: rec,
		})
	}

	c.logger.Info("correlated processes", zap.Int("records", len(res)), zap.Int("skipped", len(warnings)))
	return res, warnings
}

// CorrelateSessions turns a session listing into observations, in listing order.
func (c *Correlator) CorrelateSessions(capturedAt time.Time, sessions []common.SessionDescriptor) []common.SessionObservation {
	res := make([]common.SessionObservation, 0, len(sessions))
	for _, s := range sessions {
		res = append(res, common.SessionObservation{
			CapturedAt:        capturedAt,
			HostName:          c.hostName,
			SessionDescriptor: s,
		})
	}
	return res
}
