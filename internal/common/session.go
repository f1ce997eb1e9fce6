package common

import (
	"strconv"
	"time"
)

// SessionDescriptor represents one row of the local session table.
// It is only meaningful within the snapshot it was read from.
type SessionDescriptor struct {
	SessionID   int
	SessionName string
	Username    string
	State       string
	IdleTime    string
	// LogonTimeUTC is ISO-8601 UTC, or the raw value when it could not be parsed
	LogonTimeUTC string
}

// SessionMap maps a session id to its descriptor.
type SessionMap map[int]SessionDescriptor

// SessionObservation is one line of the session pipeline output.
type SessionObservation struct {
	CapturedAt time.Time
	HostName   string
	SessionDescriptor
}

// Fields returns the columns of the observation in output order.
func (o SessionObservation) Fields() []string {
	return []string{
		o.CapturedAt.UTC().Format(TimestampUTCLayout),
		o.HostName,
		o.Username,
		o.SessionName,
		strconv.Itoa(o.SessionID),
		o.State,
		o.IdleTime,
		o.LogonTimeUTC,
	}
}

// Row is anything the record writer can serialize.
type Row interface {
	Fields() []string
}

// Rows converts a slice of observations for the record writer.
func Rows[T Row](items []T) []Row {
	res := make([]Row, 0, len(items))
	for _, item := range items {
		res = append(res, item)
	}
	return res
}
