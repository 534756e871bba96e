// Package resetadmin implements the "advent reset-admin" CLI subcommand.
// It resets the admin password directly in the database.
package resetadmin

import (
	"context"
	"flag"

	isetup "advent/internal/setup"
)

// Options captures CLI flags for admin password reset.
// AdminPassword and AdminPasswordEnv are mutually exclusive by usage.
type Options struct {
	ConfigPath       string
	AdminPassword    string
	AdminPasswordEnv bool
}

// Run parses reset-admin flags and executes the password reset workflow.
// The reset is local-only and does not require the server to be running.
func Run(args []string) error {
	fs := flag.NewFlagSet("reset-admin", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "./advent.yaml", "path to advent.yaml")
	fs.StringVar(&opt.AdminPassword, "admin-password", "", "set admin password non-interactively")
	fs.BoolVar(&opt.AdminPasswordEnv, "admin-password-env", false, "read admin password from "+isetup.AdminPasswordEnv)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return isetup.ResetAdmin(context.Background(), isetup.ResetAdminOptions{
		ConfigPath:       opt.ConfigPath,
		AdminPassword:    opt.AdminPassword,
		AdminPasswordEnv: opt.AdminPasswordEnv,
	})
}
