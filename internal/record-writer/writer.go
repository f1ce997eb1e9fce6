package record_writer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"go.uber.org/zap"
)

const (
	Delimiter      = ","
	LineTerminator = "\r\n"
	FileExtension  = ".csv"
)

// ErrWrite marks a failure that loses the output of a run.
var ErrWrite = errors.New("failed to write records")

// FileMode is the permission of output files, readable by ingestion
// agents running under another account.
const FileMode os.FileMode = 0o644

var fieldSanitizer = strings.NewReplacer(Delimiter, " ", "\r\n", " ", "\r", " ", "\n", " ")

// Writer writes one delimited file per run under Dir.
type Writer struct {
	dir    string
	prefix string
	logger *zap.Logger
	// Now returns the local time used in file names
	Now func() time.Time
}

func NewWriter(dir, prefix string, logger *zap.Logger) *Writer {
	return &Writer{
		dir:    dir,
		prefix: prefix,
		logger: logger,
		Now:    time.Now,
	}
}

// FileName returns the output file name for t, in minute granularity.
// Runs within the same minute share a file name.
func (w *Writer) FileName(t time.Time) string {
	return w.prefix + "-" + t.Format(common.FileTimeLayout) + FileExtension
}

// Encode serializes rows, one line each, fields joined by Delimiter and
// every line ended by LineTerminator. Delimiters and line breaks inside a
// field are replaced by a space.
func Encode(rows []common.Row) []byte {
	var buf bytes.Buffer
	for _, row := range rows {
		fields := row.Fields()
		for i, f := range fields {
			if i > 0 {
				buf.WriteString(Delimiter)
			}
			buf.WriteString(fieldSanitizer.Replace(f))
		}
		buf.WriteString(LineTerminator)
	}
	return buf.Bytes()
}

// Write replaces the output file of the current minute with rows and
// returns its path. The file is written to a temporary name and renamed
// into place, so readers never see partial content.
func (w *Writer) Write(rows []common.Row) (string, error) {
	path := filepath.Join(w.dir, w.FileName(w.Now()))
	if err := w.write(path, Encode(rows)); err != nil {
		w.logger.Error("failed to write records", zap.String("path", path), zap.Error(err))
		return path, fmt.Errorf("%w to %s: %w", ErrWrite, path, err)
	}
	w.logger.Info("wrote records", zap.String("path", path), zap.Int("records", len(rows)))
	return path, nil
}

func (w *Writer) write(path string, data []byte) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(w.dir, "."+w.prefix+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close() //nolint:errcheck
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmpFile.Chmod(FileMode); err != nil {
		tmpFile.Close() //nolint:errcheck
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close() //nolint:errcheck
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	success = true

	syncDir(w.dir)
	return nil
}

// syncDir makes a rename in dir durable. It is best effort: directories
// cannot be synced on every platform.
var syncDir = func(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()  //nolint:errcheck
	d.Close() //nolint:errcheck
}
