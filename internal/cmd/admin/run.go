// Package admin implements the "advent admin" console subcommand.
package admin

import (
	"flag"

	"advent/internal/adminapi"
	"advent/internal/adminui"

	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	Addr        string
	TLSInsecure bool
}

func Run(args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.Addr, "url", "http://127.0.0.1:8080", "server base URL")
	fs.BoolVar(&opt.TLSInsecure, "insecure", false, "skip TLS verification (implied for loopback addresses)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	insecure := opt.TLSInsecure || adminui.RequireInsecureByDefault(opt.Addr)
	c, err := adminapi.NewClient(adminapi.ClientOptions{Addr: opt.Addr, Insecure: insecure})
	if err != nil {
		return err
	}

	p := tea.NewProgram(adminui.New(c, opt.Addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
