package retention

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"go.uber.org/zap"
)

const (
	// DefaultMaxLogSize is the size above which a log is truncated.
	DefaultMaxLogSize = 1 << 20
	// DefaultKeepRatio is the share of the most recent bytes kept on truncation.
	DefaultKeepRatio = 0.75
)

// Truncator shrinks oversized logs to their most recent lines.
type Truncator struct {
	MaxSize   int64
	KeepRatio float64
	Now       func() time.Time
	logger    *zap.Logger
}

func NewTruncator(maxSize int64, keepRatio float64, logger *zap.Logger) *Truncator {
	return &Truncator{
		MaxSize:   maxSize,
		KeepRatio: keepRatio,
		Now:       time.Now,
		logger:    logger,
	}
}

// Truncate truncates every oversized log in paths and returns the
// truncated ones. Missing logs are ignored.
func (t *Truncator) Truncate(paths []string) ([]string, []error) {
	truncated := make([]string, 0)
	errList := make([]error, 0)
	for _, path := range paths {
		done, err := t.TruncateLog(path)
		if err != nil {
			t.logger.Warn("failed to truncate log", zap.String("path", path), zap.Error(err))
			errList = append(errList, err)
			continue
		}
		if done {
			truncated = append(truncated, path)
		}
	}
	return truncated, errList
}

// TruncateLog keeps the most recent KeepRatio of the bytes of path when it
// exceeds MaxSize. The partial line at the cut is dropped and a marker line
// is put first. The file is rewritten in place so that writers holding it
// open in append mode keep writing to it.
func (t *Truncator) TruncateLog(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	if size <= t.MaxSize {
		return false, nil
	}

	keep := int64(float64(size) * t.KeepRatio)
	offset := size - keep
	// one more byte tells whether the cut falls on a line boundary
	buf := make([]byte, keep+1)
	if _, err := f.ReadAt(buf, offset-1); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	tail := buf[1:]
	if buf[0] != '\n' {
		idx := bytes.IndexByte(tail, '\n')
		if idx < 0 {
			tail = tail[:0]
		} else {
			tail = tail[idx+1:]
		}
	}

	marker := fmt.Sprintf("[%s] [INFO] log truncated from %d bytes, kept %d most recent bytes\n",
		t.Now().Format(common.LogTimeLayout), size, len(tail))

	if err := f.Truncate(0); err != nil {
		return false, fmt.Errorf("truncating %s: %w", path, err)
	}
	if _, err := f.WriteAt(append([]byte(marker), tail...), 0); err != nil {
		return false, fmt.Errorf("rewriting %s: %w", path, err)
	}

	t.logger.Info("truncated log", zap.String("path", path), zap.Int64("from", size), zap.Int("kept", len(tail)))
	return true, nil
}
