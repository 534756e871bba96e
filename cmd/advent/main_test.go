package main

import (
	"strings"
	"testing"
)

func TestRunRejectsMissingSubcommand(t *testing.T) {
	if err := run([]string{"advent"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunRejectsUnknownSubcommand(t *testing.T) {
	err := run([]string{"advent", "serve"})
	if err == nil || !strings.Contains(err.Error(), "unknown subcommand") {
		t.Fatalf("got %v", err)
	}
}

func TestRunHelp(t *testing.T) {
	if err := run([]string{"advent", "help"}); err != nil {
		t.Fatalf("help: %v", err)
	}
}
