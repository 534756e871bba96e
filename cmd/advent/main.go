// Command advent is the main entry point for the CLI binary.
// It dispatches to the setup, reset-admin, server and admin subcommands.
package main

import (
	"fmt"
	"os"

	"advent/internal/cmd/admin"
	"advent/internal/cmd/resetadmin"
	"advent/internal/cmd/server"
	"advent/internal/cmd/setup"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run invokes the subcommand named by argv[1].
func run(argv []string) error {
	if len(argv) < 2 {
		usage()
		return fmt.Errorf("missing subcommand")
	}

	switch argv[1] {
	case "setup":
		return setup.Run(argv[2:])
	case "reset-admin":
		return resetadmin.Run(argv[2:])
	case "server":
		return server.Run(argv[2:])
	case "admin":
		return admin.Run(argv[2:])
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown subcommand: %s", argv[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "advent <setup|reset-admin|server|admin> [flags]")
}
