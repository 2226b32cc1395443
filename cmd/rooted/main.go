// rooted CLI - trace generation, rooting lint, language server and heap
// snapshots for gc-managed packages.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/rooted/config"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides rooted.toml; -1 keeps the configured value)")
	dir := flag.String("C", ".", "Directory to search for rooted.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rooted [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  gen [packages...]        Generate Trace methods (zz_generated.trace.go)\n")
		fmt.Fprintf(os.Stderr, "  lint [packages...]       Run the unrooted and refescape analyzers\n")
		fmt.Fprintf(os.Stderr, "  lsp                      Serve lint diagnostics over stdio\n")
		fmt.Fprintf(os.Stderr, "  snapshot <subcommand>    List, show, explain or delete archived heap snapshots\n")
		fmt.Fprintf(os.Stderr, "  demo                     Build a document, collect it and archive snapshots\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rooted gen ./dom                 # Regenerate dom's Trace methods\n")
		fmt.Fprintf(os.Stderr, "  rooted lint -transitive ./...    # Lint with transitive edge checks\n")
		fmt.Fprintf(os.Stderr, "  rooted snapshot why 1 42         # Why is object #42 alive in snapshot 1?\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogPath())

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "gen":
		handleGenCommand(args, cfg)
	case "lint":
		handleLintCommand(args, cfg)
	case "lsp":
		handleLSPCommand(args, cfg)
	case "snapshot":
		handleSnapshotCommand(args, cfg)
	case "demo":
		handleDemoCommand(args, cfg)
	case "help":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

// fatalf prints an error and exits with status 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
