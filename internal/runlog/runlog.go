// Package runlog builds the zap logger of a pipeline run.
//
// Every pipeline appends to its own log file, one line per event:
//
//	[2025-11-08 09:00:00] [INFO] wrote records {"path": "...", "records": 12}
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Stderr also writes JSON logs to the standard error, like zap.NewProduction
	Stderr bool
	// Level is the minimum level written to the file
	Level zapcore.Level
	// ZapOptions are passed to zap.New
	ZapOptions []zap.Option
}

// EncoderConfig returns the encoder configuration of log files.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "time",
		LevelKey:   "level",
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(common.LogTimeLayout) + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

// New opens path in append mode and returns a logger writing to it.
// The returned function flushes the logger and closes the file.
func New(path string, opts Options) (*zap.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(EncoderConfig()), zapcore.Lock(f), opts.Level)
	if opts.Stderr {
		stderr := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(os.Stderr),
			opts.Level,
		)
		core = zapcore.NewTee(core, stderr)
	}

	logger := zap.New(core, opts.ZapOptions...)
	closeFn := func() {
		logger.Sync() //nolint:errcheck
		f.Close()     //nolint:errcheck
	}
	return logger, closeFn, nil
}
