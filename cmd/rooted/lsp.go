package main

import (
	"github.com/chazu/rooted/config"
	"github.com/chazu/rooted/lint"
	"github.com/chazu/rooted/lsp"
)

// handleLSPCommand processes the `rooted lsp` subcommand.
func handleLSPCommand(args []string, cfg *config.Config) {
	srv := lsp.New(lint.Options{
		GCPath:     cfg.GC.Path,
		Transitive: cfg.Lint.Transitive,
		Tests:      cfg.Lint.Tests,
	})
	if err := srv.Run(); err != nil {
		fatalf("lsp: %v", err)
	}
}
