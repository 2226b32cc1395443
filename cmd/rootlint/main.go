// rootlint runs the rooting analyzers as a standalone checker or as a vet
// tool:
//
//	rootlint ./...
//	go vet -vettool=$(which rootlint) ./...
package main

import (
	"golang.org/x/tools/go/analysis/multichecker"

	"github.com/chazu/rooted/analysis/refescape"
	"github.com/chazu/rooted/analysis/unrooted"
)

func main() {
	multichecker.Main(unrooted.Analyzer, refescape.Analyzer)
}
