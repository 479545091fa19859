package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the kargs configuration file (~/.config/kargs/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Color     string `yaml:"color"`

	// Device defaults
	Device           string `yaml:"device"`
	ArenaSize        *int64 `yaml:"arena_size"`
	MemoryLimitPages *int64 `yaml:"memory_limit_pages"`
	Module           string `yaml:"module"`
	FineGrain        *bool  `yaml:"fine_grain"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kargs", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyGlobalConfig applies config file defaults to global flags that were
// not set explicitly.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.Color != "" && !c.IsSet("color") {
		colorMode = cfg.Color
	}
}

// applyCaptureConfig applies config file defaults to capture flags.
func applyCaptureConfig(c *cli.Command, cfg Config, opts *captureOptions) {
	if cfg.Device != "" && !c.IsSet("device") {
		opts.device = cfg.Device
	}
	if cfg.ArenaSize != nil && !c.IsSet("arena-size") {
		opts.arenaSize = *cfg.ArenaSize
	}
	if cfg.MemoryLimitPages != nil && !c.IsSet("memory-limit-pages") {
		opts.memoryLimitPages = *cfg.MemoryLimitPages
	}
	if cfg.Module != "" && !c.IsSet("module") {
		opts.module = cfg.Module
	}
	if cfg.FineGrain != nil && !c.IsSet("fine-grain") {
		opts.fineGrain = *cfg.FineGrain
	}
}
