package common

import (
	"strconv"
	"strings"
	"time"
)

// RawProcessEntry is a process as reported by the OS, before any filtering.
type RawProcessEntry struct {
	// Name is the executable name, with or without the .exe suffix
	Name string
	// PID is the process ID
	PID int
	// SessionID is the terminal services session owning the process
	SessionID int
	// WorkingSet is the resident memory in bytes
	WorkingSet int64
	// CPUTime is the cumulative kernel and user time
	CPUTime time.Duration
	// Owner is the owning principal, empty when it cannot be resolved
	Owner string
}

// ProcessRecord is a retained process entry after normalization.
type ProcessRecord struct {
	ImageName      string
	PID            int
	SessionID      int
	MemoryBytes    int64
	CPUTimeSeconds int64
	Username       string
}

// ProcessObservation is one line of the process pipeline output.
type ProcessObservation struct {
	CapturedAt  time.Time
	HostName    string
	SessionName string
	ProcessRecord
}

// Fields returns the columns of the observation in output order.
func (o ProcessObservation) Fields() []string {
	return []string{
		o.CapturedAt.UTC().Format(TimestampUTCLayout),
		o.HostName,
		o.ImageName,
		strconv.Itoa(o.PID),
		o.Username,
		o.SessionName,
		strconv.Itoa(o.SessionID),
		strconv.FormatInt(o.MemoryBytes, 10),
		strconv.FormatInt(o.CPUTimeSeconds, 10),
	}
}

// ImageBaseName returns the lower-cased executable name without the .exe suffix.
func ImageBaseName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ImageSuffix)
}
