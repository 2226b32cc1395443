package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/rooted/config"
	"github.com/chazu/rooted/lint"
)

// handleLintCommand processes the `rooted lint` subcommand. It exits 1 when
// there are findings.
func handleLintCommand(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("lint", flag.ExitOnError)
	transitive := fs.Bool("transitive", cfg.Lint.Transitive, "Also report variables holding an edge inside a struct or array value")
	tests := fs.Bool("tests", cfg.Lint.Tests, "Include test files")
	gcPath := fs.String("gcpath", cfg.GC.Path, "Import path of the collector package")
	fs.Parse(args)

	patterns := fs.Args()
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	findings, err := lint.Run(context.Background(), patterns, lint.Options{
		GCPath:     *gcPath,
		Transitive: *transitive,
		Tests:      *tests,
	})
	if err != nil {
		fatalf("%v", err)
	}
	for _, f := range findings {
		fmt.Println(f)
	}
	if len(findings) > 0 {
		fmt.Fprintln(os.Stderr, lint.Summary(findings))
		os.Exit(1)
	}
}
