//go:build windows
// +build windows

package session_enumerator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/windows"
)

var procGetOEMCP = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetOEMCP")

// oemCodePage returns the code page console tools write redirected output in.
func oemCodePage() uint32 {
	if err := procGetOEMCP.Find(); err != nil {
		return 0
	}
	cp, _, _ := procGetOEMCP.Call()
	return uint32(cp)
}

// QueryUserLister lists sessions with `query user`.
type QueryUserLister struct{}

// NewLister returns the session lister of this platform.
func NewLister() SessionLister {
	return QueryUserLister{}
}

func (QueryUserLister) ListSessions(ctx context.Context) ([]string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "query", "user")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("query user failed: %w", err)
		}
		// query user exits with 1 both when no session exists and,
		// on some builds, when disconnected sessions are listed.
		if stdout.Len() == 0 {
			if strings.Contains(stderr.String(), "No User exists") {
				return nil, nil
			}
			return nil, fmt.Errorf("query user failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}

	out, err := DecodeOutput(stdout.Bytes(), oemCodePage())
	if err != nil {
		return nil, fmt.Errorf("failed to read query user output: %w", err)
	}

	lines := make([]string, 0)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query user output: %w", err)
	}
	return lines, nil
}
