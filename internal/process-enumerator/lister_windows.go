//go:build windows
// +build windows

package process_enumerator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"golang.org/x/sys/windows"
)

var (
	modKernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procProcessIdToSessionId = modKernel32.NewProc("ProcessIdToSessionId")
	modPsapi                 = windows.NewLazySystemDLL("psapi.dll")
	procGetProcessMemoryInfo = modPsapi.NewProc("GetProcessMemoryInfo")
)

type processMemoryCounters struct {
	Cb                         uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uintptr
	WorkingSetSize             uintptr
	QuotaPeakPagedPoolUsage    uintptr
	QuotaPagedPoolUsage        uintptr
	QuotaPeakNonPagedPoolUsage uintptr
	QuotaNonPagedPoolUsage     uintptr
	PagefileUsage              uintptr
	PeakPagefileUsage          uintptr
}

// ToolhelpLister walks a Toolhelp32 process snapshot.
type ToolhelpLister struct{}

// NewLister returns the process lister of this platform.
func NewLister() ProcessLister {
	return ToolhelpLister{}
}

func (ToolhelpLister) ListProcesses(ctx context.Context) ([]common.RawProcessEntry, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap) //nolint:errcheck

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, fmt.Errorf("failed to read process snapshot: %w", err)
	}

	res := make([]common.RawProcessEntry, 0)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// pid 0 is the idle pseudo process
		if entry.ProcessID != 0 {
			p := common.RawProcessEntry{
				Name:      strings.TrimSpace(windows.UTF16ToString(entry.ExeFile[:])),
				PID:       int(entry.ProcessID),
				SessionID: sessionOf(entry.ProcessID),
			}

			h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, entry.ProcessID)
			if err == nil {
				p.CPUTime = cpuTimeOf(h)
				p.WorkingSet = workingSetOf(h)
				p.Owner = ownerOf(h)
				windows.CloseHandle(h) //nolint:errcheck
			}
			res = append(res, p)
		}

		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}

	return res, nil
}

// sessionOf returns -1 when the session cannot be resolved.
func sessionOf(pid uint32) int {
	var sid uint32
	r, _, _ := procProcessIdToSessionId.Call(
		uintptr(pid),
		uintptr(unsafe.Pointer(&sid)),
	)
	if r == 0 {
		return -1
	}
	return int(sid)
}

func cpuTimeOf(h windows.Handle) time.Duration {
	var c, e, k, u windows.Filetime
	if err := windows.GetProcessTimes(h, &c, &e, &k, &u); err != nil {
		return 0
	}
	return filetimeToDuration(k) + filetimeToDuration(u)
}

func workingSetOf(h windows.Handle) int64 {
	var pmc processMemoryCounters
	pmc.Cb = uint32(unsafe.Sizeof(pmc))
	r, _, _ := procGetProcessMemoryInfo.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&pmc)),
		uintptr(pmc.Cb),
	)
	if r == 0 {
		return 0
	}
	return int64(pmc.WorkingSetSize)
}

func ownerOf(h windows.Handle) string {
	var token windows.Token
	if windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token) != nil {
		return ""
	}
	defer token.Close() //nolint:errcheck

	tu, err := token.GetTokenUser()
	if err != nil || tu.User.Sid == nil {
		return ""
	}
	name, domain, _, err := tu.User.Sid.LookupAccount("")
	if err != nil {
		return ""
	}
	if domain != "" {
		return domain + `\` + name
	}
	return name
}

// FILETIME durations are in 100ns units.
func filetimeToDuration(ft windows.Filetime) time.Duration {
	v := (uint64(ft.HighDateTime) << 32) | uint64(ft.LowDateTime)
	return time.Duration(v * 100)
}
