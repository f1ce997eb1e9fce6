//go:build linux
// +build linux

package process_enumerator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
)

var errProcStat = errors.New("broken process stat")

// clock ticks per second of utime and stime (USER_HZ)
const userHZ = 100

// ProcfsLister walks /proc. Only processes with a controlling terminal
// belong to a user session; their POSIX session id is reported.
type ProcfsLister struct {
	Root string
}

// NewLister returns the process lister of this platform.
func NewLister() ProcessLister {
	return ProcfsLister{Root: "/proc"}
}

func (l ProcfsLister) ListProcesses(ctx context.Context) ([]common.RawProcessEntry, error) {
	dirs, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, err
	}

	res := make([]common.RawProcessEntry, 0)
	errList := make([]error, 0)
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := d.Name()
		pid, err := strconv.Atoi(name)
		if err != nil {
			// if the name contains non-digit characters, it is not a process directory.
			continue
		}
		p, err := l.readProcess(pid)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// the process exited while walking
				continue
			}
			errList = append(errList, fmt.Errorf("pid %d: %w", pid, err))
			continue
		}
		res = append(res, *p)
	}

	return res, errors.Join(errList...)
}

func (l ProcfsLister) readProcess(pid int) (*common.RawProcessEntry, error) {
	statFilePath := filepath.Join(l.Root, strconv.Itoa(pid), "stat")
	statBytes, err := os.ReadFile(statFilePath)
	if err != nil {
		return nil, err
	}

	// The 1st (0-origin) field is the filename of the executable enclosed in
	// parentheses. It may contain spaces, so the rest is split after the last ")".
	stat := string(statBytes)
	open := strings.IndexByte(stat, '(')
	closing := strings.LastIndexByte(stat, ')')
	if open < 0 || closing < open {
		return nil, errProcStat
	}
	tcomm := stat[open+1 : closing]
	fields := strings.Fields(stat[closing+1:])
	// fields[0] is the 2nd (0-origin) field of stat, so the N-th field is fields[N-2].
	if len(fields) < 22 {
		return nil, errProcStat
	}

	sessionID := 0
	// The 6th (0-origin) field is controlling tty device number.
	// If it is "0", the process is not controlled.
	if fields[4] != "0" {
		sessionID, err = strconv.Atoi(fields[3])
		if err != nil {
			return nil, errProcStat
		}
	}

	utime, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return nil, errProcStat
	}
	stime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return nil, errProcStat
	}
	rss, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return nil, errProcStat
	}

	// Get the owner of the process
	owner := ""
	info, err := os.Stat(statFilePath)
	if err != nil {
		return nil, err
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		uid := strconv.Itoa(int(st.Uid))
		u, err := user.LookupId(uid)
		if err != nil {
			owner = uid
		} else {
			owner = u.Username
		}
	}

	return &common.RawProcessEntry{
		Name:       tcomm,
		PID:        pid,
		SessionID:  sessionID,
		WorkingSet: rss * int64(os.Getpagesize()),
		CPUTime:    time.Duration(utime+stime) * time.Second / userHZ,
		Owner:      owner,
	}, nil
}
