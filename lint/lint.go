// Package lint runs the rooting analyzers over a set of packages and
// collects their diagnostics as sorted findings.
package lint

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"go/token"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/checker"
	"golang.org/x/tools/go/packages"

	"github.com/chazu/rooted/analysis/refescape"
	"github.com/chazu/rooted/analysis/unrooted"
)

// Analyzers are the analyzers Run applies, in report order.
var Analyzers = []*analysis.Analyzer{unrooted.Analyzer, refescape.Analyzer}

// Options configures a lint run.
type Options struct {
	// Dir is the directory patterns are resolved in. Empty means the
	// current directory.
	Dir string
	// GCPath overrides the import path of the collector package.
	GCPath string
	// Transitive enables the unrooted analyzer's -transitive mode.
	Transitive bool
	// Tests includes test files.
	Tests bool
	// Overlay maps file names to unsaved contents.
	Overlay map[string][]byte
}

// Finding is one diagnostic.
type Finding struct {
	Pos      token.Position
	Analyzer string
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Pos, f.Message, f.Analyzer)
}

// The analyzers read their flags from package variables.
var flagsMu sync.Mutex

// Run loads the packages matching patterns and returns every finding,
// sorted by position.
func Run(ctx context.Context, patterns []string, opts Options) ([]Finding, error) {
	cfg := &packages.Config{
		Context: ctx,
		Mode:    packages.LoadAllSyntax,
		Dir:     opts.Dir,
		Tests:   opts.Tests,
		Overlay: opts.Overlay,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", strings.Join(patterns, " "), err)
	}
	var loadErrs []error
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			loadErrs = append(loadErrs, e)
		}
	})
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("loading %s: %w", strings.Join(patterns, " "), errors.Join(loadErrs...))
	}

	flagsMu.Lock()
	defer flagsMu.Unlock()
	restore, err := configure(opts)
	if err != nil {
		return nil, err
	}
	defer restore()

	graph, err := checker.Analyze(Analyzers, pkgs, &checker.Options{})
	if err != nil {
		return nil, fmt.Errorf("analyzing: %w", err)
	}

	var (
		findings []Finding
		errs     []error
		seen     = make(map[string]bool)
	)
	for _, act := range graph.Roots {
		if act.Err != nil {
			errs = append(errs, fmt.Errorf("%s on %s: %w", act.Analyzer.Name, act.Package.PkgPath, act.Err))
			continue
		}
		for _, d := range act.Diagnostics {
			f := Finding{
				Pos:      act.Package.Fset.Position(d.Pos),
				Analyzer: act.Analyzer.Name,
				Message:  d.Message,
			}
			// With Tests set a file can belong to several packages.
			if key := f.String(); !seen[key] {
				seen[key] = true
				findings = append(findings, f)
			}
		}
	}
	sortFindings(findings)
	log.Infof("linted %d package(s): %d finding(s)", len(pkgs), len(findings))
	return findings, errors.Join(errs...)
}

// configure applies opts to the analyzers' flags and returns a function
// that puts the previous values back.
func configure(opts Options) (func(), error) {
	prev := make(map[*analysis.Analyzer]string, len(Analyzers))
	restore := func() {
		unrooted.SetTransitive(false)
		for a, v := range prev {
			a.Flags.Set("gcpath", v)
		}
	}

	unrooted.SetTransitive(opts.Transitive)
	if opts.GCPath == "" {
		return restore, nil
	}
	for _, a := range Analyzers {
		prev[a] = a.Flags.Lookup("gcpath").Value.String()
		if err := a.Flags.Set("gcpath", opts.GCPath); err != nil {
			restore()
			return nil, fmt.Errorf("setting %s -gcpath: %w", a.Name, err)
		}
	}
	return restore, nil
}

func sortFindings(fs []Finding) {
	slices.SortFunc(fs, func(a, b Finding) int {
		return cmp.Or(
			cmp.Compare(a.Pos.Filename, b.Pos.Filename),
			cmp.Compare(a.Pos.Line, b.Pos.Line),
			cmp.Compare(a.Pos.Column, b.Pos.Column),
			cmp.Compare(a.Analyzer, b.Analyzer),
		)
	})
}

// Summary formats a one-line count of findings per analyzer.
func Summary(fs []Finding) string {
	counts := make(map[string]int)
	for _, f := range fs {
		counts[f.Analyzer]++
	}
	parts := make([]string, 0, len(Analyzers))
	for _, a := range Analyzers {
		parts = append(parts, a.Name+"="+strconv.Itoa(counts[a.Name]))
	}
	return fmt.Sprintf("%d finding(s) (%s)", len(fs), strings.Join(parts, ", "))
}
