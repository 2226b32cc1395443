package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/chazu/rooted/config"
	"github.com/chazu/rooted/tracegen"
)

// handleGenCommand processes the `rooted gen` subcommand.
// Usage:
//
//	rooted gen                 # packages from rooted.toml [tracegen]
//	rooted gen ./dom ./script  # explicit packages, one per pattern
func handleGenCommand(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	gcPath := fs.String("gcpath", cfg.GC.Path, "Import path of the collector package")
	tags := fs.String("tags", strings.Join(cfg.Tracegen.Tags, ","), "Comma-separated build tags")
	fs.Parse(args)

	patterns := fs.Args()
	if len(patterns) == 0 {
		patterns = cfg.Tracegen.Packages
	}

	opts := tracegen.Options{GCPath: *gcPath}
	if *tags != "" {
		opts.Tags = strings.Split(*tags, ",")
	}

	written, err := tracegen.Run(patterns, opts)
	for _, path := range written {
		fmt.Printf("wrote %s\n", path)
	}
	if err != nil {
		fatalf("%v", err)
	}
}
