// Package unrooted defines an Analyzer that confines gc.Edge to fields of
// traced objects.
//
// An Edge carries no protection, so it is only sound where the collector
// can see it: inside a struct whose own Trace method reports it. Anywhere
// else (a local, a parameter, a result, a composite literal, an untraced
// struct) the object it names may be reclaimed while the edge still points
// at it. The analyzer reports every such occurrence; nothing is checked at
// run time.
package unrooted

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/chazu/rooted/analysis/internal/gcutil"
)

const Doc = `report gc.Edge values outside traced fields

An Edge may only appear as the type of a field (or part of a field's type)
of a named struct that declares its own Trace(gc.Tracer) method. A promoted
Trace method does not count: it would not report the new field. Variables
of Edge type are reported wherever they are declared, as are variables
whose type is a slice, array or map of Edges: a copy or an alias of a
traced field's backing store is not traced.

Generated files and the gc package are exempt. A //gc:allow-unrooted
comment suppresses reports on its line and the next, or on a whole
declaration it documents.

With -transitive, variables holding an Edge by value anywhere inside their
value (struct fields, array and slice elements, map keys and values) are
reported too.`

var Analyzer = &analysis.Analyzer{
	Name:     "unrooted",
	Doc:      Doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var (
	transitive bool
	gcPath     = gcutil.DefaultGCPath
)

func init() {
	Analyzer.Flags.BoolVar(&transitive, "transitive", false,
		"also report variables holding an edge anywhere inside their value")
	Analyzer.Flags.StringVar(&gcPath, "gcpath", gcPath,
		"import path of the collector package")
}

// SetTransitive sets the -transitive flag for callers that run the analyzer
// programmatically.
func SetTransitive(v bool) {
	transitive = v
}

type checker struct {
	pass     *analysis.Pass
	allowed  *gcutil.Allowed
	reported map[string]map[int]bool
}

func run(pass *analysis.Pass) (any, error) {
	if pass.Pkg.Path() == gcPath {
		return nil, nil
	}
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	c := &checker{
		pass:     pass,
		allowed:  gcutil.NewAllowed(pass.Fset, pass.Files),
		reported: make(map[string]map[int]bool),
	}
	generated := make(map[*token.File]bool)
	for _, f := range pass.Files {
		if ast.IsGenerated(f) {
			generated[pass.Fset.File(f.Pos())] = true
		}
	}
	skip := func(pos token.Pos) bool {
		return generated[pass.Fset.File(pos)] || c.allowed.Allows(pos)
	}

	// Type positions.
	filter := []ast.Node{(*ast.Ident)(nil), (*ast.SelectorExpr)(nil), (*ast.IndexExpr)(nil), (*ast.IndexListExpr)(nil)}
	insp.WithStack(filter, func(n ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			return true
		}
		expr := n.(ast.Expr)
		tv, ok := pass.TypesInfo.Types[expr]
		if !ok || !tv.IsType() || !gcutil.IsInstance(tv.Type, gcPath, "Edge") {
			return true
		}
		if skip(expr.Pos()) || c.tracedField(stack) {
			return false
		}
		c.report(expr.Pos(), "gc.Edge outside a traced field: root it or store it in a field of a traced struct")
		return false
	})

	// Variables, including those typed by inference.
	for id, obj := range pass.TypesInfo.Defs {
		v, ok := obj.(*types.Var)
		if !ok || v.IsField() || skip(id.Pos()) {
			continue
		}
		switch {
		case gcutil.IsGC(v.Type(), gcPath, "Edge"):
			c.report(id.Pos(), "variable %s holds an unrooted gc.Edge", id.Name)
		case gcutil.ElemIs(v.Type(), gcPath, "Edge"):
			c.report(id.Pos(), "variable %s holds untraced gc.Edge values in %s", id.Name,
				types.TypeString(v.Type(), qualifier(pass.Pkg)))
		case transitive && gcutil.Contains(v.Type(), gcPath, "Edge", true):
			c.report(id.Pos(), "variable %s holds a gc.Edge by value inside %s", id.Name,
				types.TypeString(v.Type(), qualifier(pass.Pkg)))
		}
	}
	return nil, nil
}

// qualifier writes types of other packages with their package name.
func qualifier(pkg *types.Package) types.Qualifier {
	return func(other *types.Package) string {
		if other == pkg {
			return ""
		}
		return other.Name()
	}
}

// report emits at most one diagnostic per line, so an explicitly typed
// variable is not reported once for its type and again for itself.
func (c *checker) report(pos token.Pos, format string, args ...any) {
	p := c.pass.Fset.Position(pos)
	if c.reported[p.Filename] == nil {
		c.reported[p.Filename] = make(map[int]bool)
	}
	if c.reported[p.Filename][p.Line] {
		return
	}
	c.reported[p.Filename][p.Line] = true
	c.pass.Report(analysis.Diagnostic{
		Pos:      pos,
		Category: "unrooted",
		Message:  fmt.Sprintf(format, args...),
	})
}

// tracedField reports whether the innermost type expression on stack sits
// in a field of a named struct type that declares its own Trace method.
// Only value composition is allowed between the field and the edge:
// arrays, slices, map values and nested anonymous structs.
func (c *checker) tracedField(stack []ast.Node) bool {
	for i := len(stack) - 2; i >= 0; i-- {
		switch stack[i].(type) {
		case *ast.Field, *ast.FieldList, *ast.ArrayType, *ast.MapType,
			*ast.IndexExpr, *ast.IndexListExpr, *ast.SelectorExpr:
		case *ast.StructType:
			if i == 0 {
				return false
			}
			spec, ok := stack[i-1].(*ast.TypeSpec)
			if !ok {
				// An anonymous struct nested in a field: keep climbing.
				continue
			}
			return c.declaresTrace(spec)
		case *ast.ParenExpr:
		default:
			return false
		}
	}
	return false
}

func (c *checker) declaresTrace(spec *ast.TypeSpec) bool {
	tn, ok := c.pass.TypesInfo.Defs[spec.Name].(*types.TypeName)
	if !ok {
		return false
	}
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return false
	}
	for i := 0; i < named.NumMethods(); i++ {
		m := named.Method(i)
		if m.Name() != "Trace" {
			continue
		}
		sig := m.Type().(*types.Signature)
		if sig.Params().Len() == 1 && sig.Results().Len() == 0 &&
			gcutil.IsGC(sig.Params().At(0).Type(), gcPath, "Tracer") {
			return true
		}
	}
	return false
}
