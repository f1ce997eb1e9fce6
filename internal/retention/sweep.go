package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DefaultHorizon is the age after which output files are deleted.
const DefaultHorizon = 7 * 24 * time.Hour

// SweepResult lists what a sweep did.
type SweepResult struct {
	Deleted []string
	Errors  []error
}

// Sweeper deletes files older than Horizon.
type Sweeper struct {
	Horizon time.Duration
	Now     func() time.Time
	Remove  func(path string) error
	logger  *zap.Logger
}

func NewSweeper(horizon time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		Horizon: horizon,
		Now:     time.Now,
		Remove:  os.Remove,
		logger:  logger,
	}
}

// Sweep deletes the expired regular files directly under each of dirs.
// A failure on one file or directory does not stop the others.
func (s *Sweeper) Sweep(dirs []string) *SweepResult {
	res := &SweepResult{
		Deleted: make([]string, 0),
		Errors:  make([]error, 0),
	}
	cutoff := s.Now().Add(-s.Horizon)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.logger.Info("skipped missing directory", zap.String("dir", dir))
				continue
			}
			s.logger.Error("failed to read directory", zap.String("dir", dir), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("reading %s: %w", dir, err))
			continue
		}

		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			info, err := e.Info()
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				s.logger.Warn("failed to stat file", zap.String("path", path), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Errorf("stat %s: %w", path, err))
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := s.Remove(path); err != nil {
				s.logger.Warn("failed to delete expired file", zap.String("path", path), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Errorf("deleting %s: %w", path, err))
				continue
			}
			res.Deleted = append(res.Deleted, path)
		}
	}

	s.logger.Info("swept expired files", zap.Int("deleted", len(res.Deleted)), zap.Int("errors", len(res.Errors)))
	return res
}
