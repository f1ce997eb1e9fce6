package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Parse loads the file named by --config, then applies the other flags of
// args over it. pflag.ErrHelp is returned after printing the usage.
func Parse(name string, args []string) (*Config, error) {
	var path string

	pre := pflag.NewFlagSet(name, pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.StringVar(&path, "config", "", "")
	pre.BoolP("help", "h", false, "")
	if err := pre.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&path, "config", path, "YAML configuration file")
	cfg.AddFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", name)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
