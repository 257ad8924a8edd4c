package main

import (
	"flag"
	"fmt"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"

	"sobelf-go/internal/config"
)

// resolveConfig layers the config file over the defaults and the flags
// that were set explicitly over both.
func resolveConfig(cmd *cobra.Command) (config.AppConfig, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	fl := opts.flags
	set("pipeline", func() { cfg.Pipeline = fl.Pipeline })
	set("blur-size", func() { cfg.BlurSize = fl.BlurSize })
	set("threshold", func() { cfg.Threshold = fl.Threshold })
	set("threads", func() { cfg.Threads = fl.Threads })
	set("workers", func() { cfg.Workers = fl.Workers })
	set("status-port", func() { cfg.StatusPort = fl.StatusPort })
	set("ui-rate", func() { cfg.UIRate = fl.UIRate })
	set("record-dir", func() { cfg.RecordDir = fl.RecordDir })
	set("journal", func() { cfg.Journal = fl.Journal })
	set("log-every", func() { cfg.LogEvery = fl.LogEvery })
	set("quiet", func() { cfg.Quiet = fl.Quiet })
	set("debug", func() { cfg.Debug = fl.Debug })
	set("endpoints", func() { cfg.Endpoints = fl.Endpoints })
	set("ranks", func() { cfg.Ranks = fl.Ranks })
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyRuntime sets process-wide state every rank shares.
func applyRuntime(cfg config.AppConfig, prefix string) error {
	if cfg.Threads > 0 {
		runtime.GOMAXPROCS(cfg.Threads)
	}
	log.SetPrefix(prefix)
	switch {
	case cfg.Debug:
		return flag.CommandLine.Set("log", "debug")
	case cfg.Quiet:
		return flag.CommandLine.Set("log", "error")
	}
	return nil
}
