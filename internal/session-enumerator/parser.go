package session_enumerator

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
)

// Lines of `query user` come in two shapes: connected sessions carry a
// session name token, disconnected ones leave that column blank.
var (
	lineWithName    = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(\d+)\s+(\S+)\s+(\S+)\s+(\S.*?)\s*$`)
	lineWithoutName = regexp.MustCompile(`^(\S+)\s+(\d+)\s+(\S+)\s+(\S+)\s+(\S.*?)\s*$`)
)

var logonTimeLayouts = []string{
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"2006-01-02 15:04",
	"2.1.2006 15:04",
}

var idlePlaceholders = map[string]bool{
	"":     true,
	".":    true,
	"none": true,
	"-":    true,
}

// ParseLine parses one line of the session listing.
// It returns false for headers and lines of any other shape.
func ParseLine(line string, loc *time.Location) (common.SessionDescriptor, bool) {
	line = strings.TrimSpace(line)
	// ">" marks the session of the caller
	line = strings.TrimPrefix(line, ">")

	var username, sessionName, id, state, idle, logon string
	if m := lineWithName.FindStringSubmatch(line); m != nil {
		username, sessionName, id, state, idle, logon = m[1], m[2], m[3], m[4], m[5], m[6]
	} else if m := lineWithoutName.FindStringSubmatch(line); m != nil {
		username, id, state, idle, logon = m[1], m[2], m[3], m[4], m[5]
	} else {
		return common.SessionDescriptor{}, false
	}

	sessionID, err := strconv.Atoi(id)
	if err != nil {
		return common.SessionDescriptor{}, false
	}

	return common.SessionDescriptor{
		SessionID:    sessionID,
		SessionName:  normalizeSessionName(sessionName),
		Username:     username,
		State:        state,
		IdleTime:     normalizeIdleTime(idle),
		LogonTimeUTC: normalizeLogonTime(logon, loc),
	}, true
}

func normalizeSessionName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "#", " "))
}

func normalizeIdleTime(idle string) string {
	if idlePlaceholders[strings.ToLower(idle)] {
		return "0"
	}
	return idle
}

// normalizeLogonTime converts a local logon time to UTC.
// Values in an unknown format are returned unchanged.
func normalizeLogonTime(raw string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	value := strings.Join(strings.Fields(raw), " ")
	for _, layout := range logonTimeLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t.UTC().Format(common.TimestampUTCLayout)
		}
	}
	return raw
}
