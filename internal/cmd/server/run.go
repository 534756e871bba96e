// Package server implements the "advent server" CLI subcommand.
package server

import (
	"context"
	"flag"
	"strings"

	"advent/internal/config"
	"advent/internal/daemon"
	"advent/internal/logging"
)

type Options struct {
	ConfigPath string
	LogLevel   string
}

func Run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "./advent.yaml", "path to advent.yaml")
	fs.StringVar(&opt.LogLevel, "log-level", "", "override log.level: debug|info|warning|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := config.Load(opt.ConfigPath)
	if err != nil {
		return err
	}
	// CLI overrides config.
	if strings.TrimSpace(opt.LogLevel) != "" {
		c.Log.Level = opt.LogLevel
	}
	lg, _, err := logging.New(logging.Options{
		Level: c.Log.Level,
		JSON:  c.Log.JSON,
		File: logging.FileOptions{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
		DefaultSlog: true,
	})
	if err != nil {
		return err
	}
	return daemon.Run(context.Background(), daemon.Options{Config: c, Logger: lg})
}
