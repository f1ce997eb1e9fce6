// Package config loads the settings shared by the sampler binaries.
//
// Settings come from an optional YAML file, overridden by command line
// flags. Every field has a default, so running without a file is valid.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	process_enumerator "github.com/cybozu-go/avd-usage-collector/internal/process-enumerator"
	"github.com/cybozu-go/avd-usage-collector/internal/retention"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of all pipelines.
type Config struct {
	// Root is the base directory of output files and logs.
	// Default: C:\ProgramData\AVDUsage on Windows, /var/lib/avd-usage elsewhere
	Root string `yaml:"root"`

	// HostName is written in every record.
	// Default: the OS host name
	HostName string `yaml:"host_name"`

	// ProcessDir, SessionDir and LogDir are relative to Root unless absolute.
	ProcessDir string `yaml:"process_dir"`
	SessionDir string `yaml:"session_dir"`
	LogDir     string `yaml:"log_dir"`

	// ProcessPrefix and SessionPrefix start the output file names.
	ProcessPrefix string `yaml:"process_prefix"`
	SessionPrefix string `yaml:"session_prefix"`

	// RetentionDays is the age in days after which output files are deleted.
	RetentionDays int `yaml:"retention_days"`

	// MaxLogSize is the size above which logs are truncated, e.g. "1MB".
	MaxLogSize string `yaml:"max_log_size"`

	// KeepRatio is the share of the most recent log bytes kept on truncation.
	KeepRatio float64 `yaml:"keep_ratio"`

	// ExcludedImages are process names never recorded.
	ExcludedImages []string `yaml:"excluded_images"`

	// SystemAccountPatterns are regular expressions of owners never recorded.
	SystemAccountPatterns []string `yaml:"system_account_patterns"`

	// MetricsDir receives a Prometheus text file per pipeline when set.
	MetricsDir string `yaml:"metrics_dir"`

	// LogStderr also writes logs to the standard error.
	LogStderr bool `yaml:"log_stderr"`
}

// DefaultRoot returns the default Root of this platform.
func DefaultRoot() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\AVDUsage`
	}
	return "/var/lib/avd-usage"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Root:                  DefaultRoot(),
		ProcessDir:            common.DefaultProcessDir,
		SessionDir:            common.DefaultSessionDir,
		LogDir:                common.DefaultLogDir,
		ProcessPrefix:         common.DefaultProcessPrefix,
		SessionPrefix:         common.DefaultSessionPrefix,
		RetentionDays:         int(retention.DefaultHorizon / (24 * time.Hour)),
		MaxLogSize:            humanize.IBytes(retention.DefaultMaxLogSize),
		KeepRatio:             retention.DefaultKeepRatio,
		ExcludedImages:        append([]string{}, process_enumerator.DefaultExcludedImages...),
		SystemAccountPatterns: append([]string{}, process_enumerator.DefaultSystemAccountPatterns...),
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// AddFlags registers the overridable fields on fs.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Root, "root", c.Root, "base directory of output files and logs")
	fs.StringVar(&c.HostName, "host-name", c.HostName, "host name written in records (default: OS host name)")
	fs.IntVar(&c.RetentionDays, "retention-days", c.RetentionDays, "age in days after which output files are deleted")
	fs.StringVar(&c.MaxLogSize, "max-log-size", c.MaxLogSize, "size above which logs are truncated")
	fs.StringVar(&c.MetricsDir, "metrics-dir", c.MetricsDir, "directory of Prometheus text files (disabled when empty)")
	fs.BoolVar(&c.LogStderr, "log-stderr", c.LogStderr, "also write logs to the standard error")
}

// Validate checks the configuration and fills in the host name.
func (c *Config) Validate() error {
	errList := make([]error, 0)
	if c.Root == "" {
		errList = append(errList, errors.New("root must not be empty"))
	}
	if c.RetentionDays <= 0 {
		errList = append(errList, fmt.Errorf("retention_days must be positive: %d", c.RetentionDays))
	}
	if _, err := c.MaxLogSizeBytes(); err != nil {
		errList = append(errList, err)
	}
	if c.KeepRatio <= 0 || c.KeepRatio >= 1 {
		errList = append(errList, fmt.Errorf("keep_ratio must be between 0 and 1: %v", c.KeepRatio))
	}
	for _, p := range c.SystemAccountPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errList = append(errList, fmt.Errorf("invalid system account pattern %q: %w", p, err))
		}
	}
	if c.ProcessPrefix == "" || c.SessionPrefix == "" {
		errList = append(errList, errors.New("file prefixes must not be empty"))
	}
	if len(errList) > 0 {
		return errors.Join(errList...)
	}

	if c.HostName == "" {
		name, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolving host name: %w", err)
		}
		c.HostName = name
	}
	return nil
}

// MaxLogSizeBytes parses MaxLogSize.
func (c *Config) MaxLogSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxLogSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_log_size %q: %w", c.MaxLogSize, err)
	}
	return int64(n), nil
}

// Horizon returns the retention horizon.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Root, dir)
}

// ProcessOutputDir returns the directory of process pipeline output.
func (c *Config) ProcessOutputDir() string {
	return c.resolve(c.ProcessDir)
}

// SessionOutputDir returns the directory of session pipeline output.
func (c *Config) SessionOutputDir() string {
	return c.resolve(c.SessionDir)
}

// SweepDirs returns the directories pruned by age: both outputs and the
// log directory.
func (c *Config) SweepDirs() []string {
	return []string{c.ProcessOutputDir(), c.SessionOutputDir(), c.resolve(c.LogDir)}
}

// LogPath returns the log file of pipeline.
func (c *Config) LogPath(pipeline string) string {
	return filepath.Join(c.resolve(c.LogDir), pipeline+".log")
}

// LogPaths returns the log files of all pipelines.
func (c *Config) LogPaths() []string {
	return []string{
		c.LogPath(common.PipelineProcesses),
		c.LogPath(common.PipelineSessions),
		c.LogPath(common.PipelineHousekeeping),
	}
}

// MetricsPath returns the Prometheus text file of pipeline, or "" when disabled.
func (c *Config) MetricsPath(pipeline string) string {
	if c.MetricsDir == "" {
		return ""
	}
	return filepath.Join(c.resolve(c.MetricsDir), "avd_usage_"+pipeline+".prom")
}
