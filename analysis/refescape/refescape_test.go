package refescape_test

import (
	"testing"

	"golang.org/x/tools/go/analysis/analysistest"

	"github.com/chazu/rooted/analysis/refescape"
)

func TestAnalyzer(t *testing.T) {
	analysistest.Run(t, analysistest.TestData(), refescape.Analyzer, "a")
}
