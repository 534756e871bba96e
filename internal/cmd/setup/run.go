// Package setup implements the "advent setup" CLI subcommand.
package setup

import (
	"context"
	"flag"
	"fmt"

	"advent/internal/logging"
	isetup "advent/internal/setup"
)

type Options struct {
	ConfigPath       string
	Start            string
	GeneratePassword bool
	AdminPassword    string
	AdminPasswordEnv bool
	LogLevel         string
}

func Run(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "./advent.yaml", "path to advent.yaml (written with defaults when missing)")
	fs.StringVar(&opt.Start, "start", "", "first calendar day YYYY-MM-DD for a new config (default: December 1st)")
	fs.BoolVar(&opt.GeneratePassword, "generate-password", false, "generate and print a random admin password")
	fs.StringVar(&opt.AdminPassword, "admin-password", "", "set admin password non-interactively")
	fs.BoolVar(&opt.AdminPasswordEnv, "admin-password-env", false, "read admin password from "+isetup.AdminPasswordEnv)
	fs.StringVar(&opt.LogLevel, "log-level", "info", "log level: debug|info|warning|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lg, _, err := logging.New(logging.Options{Level: opt.LogLevel, DefaultSlog: true})
	if err != nil {
		return err
	}
	res, err := isetup.Run(context.Background(), isetup.Options{
		ConfigPath:       opt.ConfigPath,
		Start:            opt.Start,
		GeneratePassword: opt.GeneratePassword,
		AdminPassword:    opt.AdminPassword,
		AdminPasswordEnv: opt.AdminPasswordEnv,
		Logger:           lg,
	})
	if err != nil {
		return err
	}
	fmt.Printf("setup complete: config_written=%v admin_created=%v posts_created=%d\n", res.ConfigWritten, res.AdminCreated, res.PostsCreated)
	return nil
}
