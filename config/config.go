// Package config loads the handful of options spec.md §6 lists, plus
// the listen address a runnable binary also needs. Options are bound
// as CLI flags via github.com/spf13/pflag; an optional YAML file
// (--config) can set the same fields, and flags passed on the command
// line win over the file when both are present.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the full set of options this server recognises.
type Config struct {
	ListenAddr       string        `yaml:"listen_addr"`
	RootPath         string        `yaml:"root_path"`
	IndexHTML        string        `yaml:"index_html"`
	KeepAliveTimeout int           `yaml:"keep_alive_timeout"`
	Threads          ThreadsConfig `yaml:"threads"`
}

// ThreadsConfig configures the worker group (spec §6's "threads.*").
type ThreadsConfig struct {
	Count int `yaml:"count"`
	MaxFD int `yaml:"max_fd"`
}

// Default returns the configuration used before a config file or any
// flags are applied.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		IndexHTML:        "index.html",
		KeepAliveTimeout: 15,
		Threads: ThreadsConfig{
			Count: 4,
			MaxFD: 4096,
		},
	}
}

// Load parses args (typically os.Args[1:]) into a Config. A --config
// flag, if present, is resolved and applied first so that explicit
// flags elsewhere in args still take precedence over the file.
// root_path has no default: spec §6 marks it required.
func Load(args []string) (*Config, error) {
	cfg := Default()

	// configPath is found with its own pass over args, ignoring any
	// other flags, since pflag has no built-in two-phase parse and a
	// config file's values need to land before the real flag
	// defaults are computed.
	configOnly := pflag.NewFlagSet("fastfile-config-lookup", pflag.ContinueOnError)
	configOnly.ParseErrorsWhitelist.UnknownFlags = true
	configPath := configOnly.String("config", "", "")
	if err := configOnly.Parse(args); err != nil {
		return nil, err
	}
	if *configPath != "" {
		if err := applyFile(cfg, *configPath); err != nil {
			return nil, err
		}
	}

	flagSet := pflag.NewFlagSet("fastfile", pflag.ContinueOnError)
	flagSet.String("config", *configPath, "path to a YAML config file")
	flagSet.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "address to listen on")
	flagSet.StringVar(&cfg.RootPath, "root-path", cfg.RootPath, "directory to serve (required)")
	flagSet.StringVar(&cfg.IndexHTML, "index-html", cfg.IndexHTML, "index file name served for directory requests")
	flagSet.IntVar(&cfg.KeepAliveTimeout, "keep-alive-timeout", cfg.KeepAliveTimeout, "idle connection timeout, in seconds")
	flagSet.IntVar(&cfg.Threads.Count, "threads-count", cfg.Threads.Count, "number of worker threads")
	flagSet.IntVar(&cfg.Threads.MaxFD, "threads-max-fd", cfg.Threads.MaxFD, "per-worker file descriptor slab size")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate checks the fields spec §6 marks required or bounded.
func (c *Config) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("root_path is required")
	}
	if c.Threads.Count <= 0 {
		return fmt.Errorf("threads.count must be positive")
	}
	if c.Threads.MaxFD <= 0 {
		return fmt.Errorf("threads.max_fd must be positive")
	}
	if c.KeepAliveTimeout <= 0 {
		return fmt.Errorf("keep_alive_timeout must be positive")
	}
	return nil
}
