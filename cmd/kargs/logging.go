package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/kernel-runtime/device"
	"github.com/wippyai/kernel-runtime/device/host"
	"github.com/wippyai/kernel-runtime/device/wasm"
	"github.com/wippyai/kernel-runtime/kernel"
	"github.com/wippyai/kernel-runtime/params"
)

var logger = zap.NewNop()

func setupLogging(level, format string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "pretty", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	logger = l
	device.SetLogger(l.Named("device"))
	wasm.SetLogger(l.Named("wasm"))
	host.SetLogger(l.Named("host"))
	params.SetLogger(l.Named("params"))
	kernel.SetLogger(l.Named("kernel"))
	return nil
}
