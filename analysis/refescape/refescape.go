// Package refescape defines an Analyzer that keeps gc.Ref values from
// outliving the Root they were borrowed from.
package refescape

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

const Doc = `report gc.Ref values that escape their root

A Ref is valid only while the Root it was borrowed from is held. This
analyzer reports the ways a Ref commonly outlives it:

  - returning a Ref (or a Root) whose Root belongs to a scope entered in
    the same function, which exits before the caller can use it;
  - declaring a struct field that holds a Ref;
  - storing a Ref in a package-level variable;
  - handing a Ref to a goroutine, as an argument or a captured variable;
  - capturing a Ref, Root or Scope in a function literal passed to a call
    that allocates a collector-owned object, which keeps the function.

The object pointer Ref.Get returns is held to the same rules: it may not
be returned past its root's scope, stored in a package variable or a
struct field, or handed to a goroutine.

The gc package is exempt, as are generated files and code marked with
//gc:allow-unrooted. Escapes it cannot see are caught at run time: using a
Ref after its Root is released panics.`

var Analyzer = &analysis.Analyzer{
	Name:     "refescape",
	Doc:      Doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var gcPath = gcutil.DefaultGCPath

func init() {
	Analyzer.Flags.StringVar(&gcPath, "gcpath", gcPath, "import path of the collector package")
}

type checker struct {
	pass      *analysis.Pass
	allowed   *gcutil.Allowed
	generated map[*token.File]bool
	reported  map[token.Position]bool

	// raw holds the variables assigned from Ref.Get.
	raw map[types.Object]bool
}

func run(pass *analysis.Pass) (any, error) {
	if pass.Pkg.Path() == gcPath {
		return nil, nil
	}
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	c := &checker{
		pass:      pass,
		allowed:   gcutil.NewAllowed(pass.Fset, pass.Files),
		generated: make(map[*token.File]bool),
		reported:  make(map[token.Position]bool),
		raw:       make(map[types.Object]bool),
	}
	for _, f := range pass.Files {
		if ast.IsGenerated(f) {
			c.generated[pass.Fset.File(f.Pos())] = true
		}
	}
	c.collectRaw()

	filter := []ast.Node{
		(*ast.StructType)(nil),
		(*ast.File)(nil),
		(*ast.AssignStmt)(nil),
		(*ast.GoStmt)(nil),
		(*ast.FuncDecl)(nil),
		(*ast.FuncLit)(nil),
		(*ast.CompositeLit)(nil),
		(*ast.CallExpr)(nil),
	}
	insp.Preorder(filter, func(n ast.Node) {
		switch n := n.(type) {
		case *ast.StructType:
			c.checkStruct(n)
		case *ast.File:
			c.checkPackageVars(n)
		case *ast.AssignStmt:
			c.checkPackageAssign(n)
			c.checkFieldStore(n)
		case *ast.CompositeLit:
			c.checkCompositeLit(n)
		case *ast.CallExpr:
			c.checkStoredClosures(n)
		case *ast.GoStmt:
			c.checkGo(n)
		case *ast.FuncDecl:
			if n.Body != nil {
				c.checkReturns(n.Body)
			}
		case *ast.FuncLit:
			c.checkReturns(n.Body)
		}
	})
	return nil, nil
}

func (c *checker) report(pos token.Pos, format string, args ...any) {
	if c.generated[c.pass.Fset.File(pos)] || c.allowed.Allows(pos) {
		return
	}
	p := c.pass.Fset.Position(pos)
	if c.reported[p] {
		return
	}
	c.reported[p] = true
	c.pass.Report(analysis.Diagnostic{
		Pos:      pos,
		Category: "refescape",
		Message:  fmt.Sprintf(format, args...),
	})
}

func (c *checker) holdsRef(t types.Type) bool {
	return t != nil && gcutil.Contains(t, gcPath, "Ref", true)
}

func (c *checker) isRef(t types.Type) bool {
	return t != nil && gcutil.IsGC(t, gcPath, "Ref")
}

func (c *checker) isRoot(t types.Type) bool {
	p, ok := types.Unalias(t).(*types.Pointer)
	return ok && gcutil.IsGC(p.Elem(), gcPath, "Root")
}

func (c *checker) isScope(t types.Type) bool {
	p, ok := types.Unalias(t).(*types.Pointer)
	return ok && gcutil.IsGC(p.Elem(), gcPath, "Scope")
}

// isHandle reports whether t is a Ref, Root or Scope, or holds a Ref.
func (c *checker) isHandle(t types.Type) bool {
	return c.holdsRef(t) || c.isRoot(t) || c.isScope(t)
}

// getCall returns the Ref operand if e is a call of Ref.Get.
func (c *checker) getCall(e ast.Expr) (ast.Expr, bool) {
	call, ok := ast.Unparen(e).(*ast.CallExpr)
	if !ok || len(call.Args) != 0 {
		return nil, false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Get" || !c.isRef(c.pass.TypesInfo.TypeOf(sel.X)) {
		return nil, false
	}
	return sel.X, true
}

// fromGet reports whether e is an object taken from Ref.Get, directly or
// through a variable.
func (c *checker) fromGet(e ast.Expr) bool {
	if _, ok := c.getCall(e); ok {
		return true
	}
	return c.isLocal(c.raw, e)
}

func (c *checker) collectRaw() {
	for _, file := range c.pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.AssignStmt:
				c.bindRaw(n.Lhs, n.Rhs)
			case *ast.ValueSpec:
				lhs := make([]ast.Expr, len(n.Names))
				for i, name := range n.Names {
					lhs[i] = name
				}
				c.bindRaw(lhs, n.Values)
			}
			return true
		})
	}
}

func (c *checker) bindRaw(lhs, rhs []ast.Expr) {
	if len(lhs) != len(rhs) {
		return
	}
	for i, l := range lhs {
		id, ok := ast.Unparen(l).(*ast.Ident)
		if !ok || id.Name == "_" || !c.fromGet(rhs[i]) {
			continue
		}
		if obj := c.pass.TypesInfo.ObjectOf(id); obj != nil {
			c.raw[obj] = true
		}
	}
}

// captures calls fn for each variable lit uses but does not declare.
func (c *checker) captures(lit *ast.FuncLit, fn func(id *ast.Ident, v *types.Var)) {
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		v, ok := c.pass.TypesInfo.Uses[id].(*types.Var)
		if !ok || v.IsField() {
			return true
		}
		if v.Pos() >= lit.Pos() && v.Pos() < lit.End() {
			return true
		}
		fn(id, v)
		return true
	})
}

// firstType returns the type of e, or of its first result if e is a call
// returning several values.
func (c *checker) firstType(e ast.Expr) types.Type {
	t := c.pass.TypesInfo.TypeOf(e)
	if tuple, ok := t.(*types.Tuple); ok {
		if tuple.Len() == 0 {
			return nil
		}
		return tuple.At(0).Type()
	}
	return t
}

// ---------------------------------------------------------------------------
// Storage: struct fields and package variables
// ---------------------------------------------------------------------------

func (c *checker) checkStruct(st *ast.StructType) {
	for _, field := range st.Fields.List {
		// Nested anonymous structs are reported at their own fields.
		if _, ok := field.Type.(*ast.StructType); ok {
			continue
		}
		if c.holdsRef(c.pass.TypesInfo.TypeOf(field.Type)) {
			c.report(field.Type.Pos(), "gc.Ref stored in a struct field; hold a *gc.Root, or a gc.Edge in a traced object")
		}
	}
}

func (c *checker) checkPackageVars(file *ast.File) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			for _, name := range spec.(*ast.ValueSpec).Names {
				obj := c.pass.TypesInfo.Defs[name]
				if obj != nil && c.holdsRef(obj.Type()) {
					c.report(name.Pos(), "package variable %s holds a gc.Ref", name.Name)
				}
			}
		}
	}
}

func (c *checker) checkPackageAssign(as *ast.AssignStmt) {
	for i, lhs := range as.Lhs {
		id, ok := ast.Unparen(lhs).(*ast.Ident)
		if !ok {
			continue
		}
		v, ok := c.pass.TypesInfo.Uses[id].(*types.Var)
		if !ok || v.Parent() != c.pass.Pkg.Scope() {
			continue
		}
		var t types.Type
		if len(as.Rhs) == len(as.Lhs) {
			if c.fromGet(as.Rhs[i]) {
				c.report(as.Pos(), "object from gc.Ref.Get assigned to package variable %s; hold a *gc.Root", id.Name)
				continue
			}
			t = c.pass.TypesInfo.TypeOf(as.Rhs[i])
		} else {
			t = v.Type()
		}
		if c.holdsRef(t) {
			c.report(as.Pos(), "gc.Ref assigned to package variable %s", id.Name)
		}
	}
}

func (c *checker) checkFieldStore(as *ast.AssignStmt) {
	if len(as.Lhs) != len(as.Rhs) {
		return
	}
	for i, lhs := range as.Lhs {
		sel, ok := ast.Unparen(lhs).(*ast.SelectorExpr)
		if !ok {
			continue
		}
		if s, ok := c.pass.TypesInfo.Selections[sel]; !ok || s.Kind() != types.FieldVal {
			continue
		}
		if c.fromGet(as.Rhs[i]) {
			c.report(as.Rhs[i].Pos(), "object from gc.Ref.Get stored in struct field %s; store a gc.Edge with Edge.Set", sel.Sel.Name)
		}
	}
}

func (c *checker) checkCompositeLit(lit *ast.CompositeLit) {
	t := c.pass.TypesInfo.TypeOf(lit)
	if t == nil {
		return
	}
	if _, ok := t.Underlying().(*types.Struct); !ok {
		return
	}
	for _, elt := range lit.Elts {
		if kv, ok := elt.(*ast.KeyValueExpr); ok {
			if c.fromGet(kv.Value) {
				c.report(kv.Value.Pos(), "object from gc.Ref.Get stored in struct field %s; store a gc.Edge with Edge.Set", kv.Key.(*ast.Ident).Name)
			}
		} else if c.fromGet(elt) {
			c.report(elt.Pos(), "object from gc.Ref.Get stored in a struct field; store a gc.Edge with Edge.Set")
		}
	}
}

// ---------------------------------------------------------------------------
// Goroutines
// ---------------------------------------------------------------------------

func (c *checker) checkGo(g *ast.GoStmt) {
	for _, arg := range g.Call.Args {
		switch {
		case c.holdsRef(c.pass.TypesInfo.TypeOf(arg)):
			c.report(arg.Pos(), "gc.Ref passed to a goroutine")
		case c.fromGet(arg):
			c.report(arg.Pos(), "object from gc.Ref.Get passed to a goroutine")
		}
	}
	lit, ok := g.Call.Fun.(*ast.FuncLit)
	if !ok {
		return
	}
	c.captures(lit, func(id *ast.Ident, v *types.Var) {
		switch {
		case c.holdsRef(v.Type()):
			c.report(id.Pos(), "gc.Ref %s captured by a goroutine", id.Name)
		case c.raw[v]:
			c.report(id.Pos(), "object %s from gc.Ref.Get captured by a goroutine", id.Name)
		}
	})
}

// ---------------------------------------------------------------------------
// Closures kept by the heap
// ---------------------------------------------------------------------------

// allocates reports whether a call returning t hands back a new
// collector-owned object.
func (c *checker) allocates(t types.Type) bool {
	return t != nil && (gcutil.IsGC(t, gcPath, "Temp") || c.isRef(t) || c.isRoot(t))
}

func (c *checker) checkStoredClosures(call *ast.CallExpr) {
	if !c.allocates(c.firstType(call)) {
		return
	}
	for _, arg := range call.Args {
		lit, ok := ast.Unparen(arg).(*ast.FuncLit)
		if !ok {
			continue
		}
		c.captures(lit, func(id *ast.Ident, v *types.Var) {
			if c.isHandle(v.Type()) || c.raw[v] {
				c.report(id.Pos(), "%s captured by a function stored in a collector-owned object; root what it needs inside the function", id.Name)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// frame tracks, for one function body, the scopes it enters and the roots
// and refs that depend on them.
type frame struct {
	scopes  map[types.Object]bool
	roots   map[types.Object]bool
	derived map[types.Object]bool
	raw     map[types.Object]bool
}

func (c *checker) checkReturns(body *ast.BlockStmt) {
	f := &frame{
		scopes:  make(map[types.Object]bool),
		roots:   make(map[types.Object]bool),
		derived: make(map[types.Object]bool),
		raw:     make(map[types.Object]bool),
	}
	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			// Checked as its own function.
			return false
		case *ast.AssignStmt:
			c.bind(f, n.Lhs, n.Rhs)
		case *ast.ValueSpec:
			lhs := make([]ast.Expr, len(n.Names))
			for i, name := range n.Names {
				lhs[i] = name
			}
			c.bind(f, lhs, n.Values)
		case *ast.ReturnStmt:
			for _, res := range n.Results {
				t := c.pass.TypesInfo.TypeOf(res)
				switch {
				case c.isRef(t) && c.fromLocalRoot(f, res):
					c.report(res.Pos(), "returns a gc.Ref borrowed from a root whose scope exits with this function")
				case c.isRoot(t) && c.localRoot(f, res):
					c.report(res.Pos(), "returns a *gc.Root owned by a scope that exits with this function")
				case c.localGet(f, res):
					c.report(res.Pos(), "returns an object taken from a gc.Ref whose root's scope exits with this function")
				}
			}
		}
		return true
	})
}

func (c *checker) bind(f *frame, lhs, rhs []ast.Expr) {
	for i, l := range lhs {
		id, ok := ast.Unparen(l).(*ast.Ident)
		if !ok || id.Name == "_" {
			continue
		}
		obj := c.pass.TypesInfo.ObjectOf(id)
		if obj == nil {
			continue
		}
		var r ast.Expr
		switch {
		case len(rhs) == len(lhs):
			r = rhs[i]
		case len(rhs) == 1 && i == 0:
			r = rhs[0]
		default:
			continue
		}

		t := c.pass.TypesInfo.TypeOf(l)
		switch {
		case c.isScope(t) && c.entersScope(r):
			f.scopes[obj] = true
		case c.isRoot(t) && c.localRoot(f, r):
			f.roots[obj] = true
		case c.isRef(t) && c.fromLocalRoot(f, r):
			f.derived[obj] = true
		case c.localGet(f, r):
			f.raw[obj] = true
		}
	}
}

// entersScope reports whether e creates a scope, as opposed to passing one
// along.
func (c *checker) entersScope(e ast.Expr) bool {
	call, ok := ast.Unparen(e).(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	return ok && sel.Sel.Name == "Enter" && c.isScope(c.firstType(call))
}

func (c *checker) isLocal(set map[types.Object]bool, e ast.Expr) bool {
	id, ok := ast.Unparen(e).(*ast.Ident)
	if !ok {
		return false
	}
	return set[c.pass.TypesInfo.ObjectOf(id)]
}

// localRoot reports whether e is a root owned by a scope entered in f.
func (c *checker) localRoot(f *frame, e ast.Expr) bool {
	e = ast.Unparen(e)
	if c.isLocal(f.roots, e) {
		return true
	}
	call, ok := e.(*ast.CallExpr)
	if !ok || !c.isRoot(c.firstType(call)) {
		return false
	}
	if sel, ok := call.Fun.(*ast.SelectorExpr); ok && c.isLocal(f.scopes, sel.X) {
		return true
	}
	for _, arg := range call.Args {
		if c.isLocal(f.scopes, arg) {
			return true
		}
	}
	return false
}

// fromLocalRoot reports whether e is a Ref borrowed, directly or through
// casts, from a root owned by a scope entered in f.
func (c *checker) fromLocalRoot(f *frame, e ast.Expr) bool {
	e = ast.Unparen(e)
	if c.isLocal(f.derived, e) {
		return true
	}
	call, ok := e.(*ast.CallExpr)
	if !ok || !c.isRef(c.firstType(call)) {
		return false
	}
	if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
		if sel.Sel.Name == "Borrow" && c.localRoot(f, sel.X) {
			return true
		}
		if c.isRef(c.pass.TypesInfo.TypeOf(sel.X)) && c.fromLocalRoot(f, sel.X) {
			return true
		}
	}
	for _, arg := range call.Args {
		if c.fromLocalRoot(f, arg) {
			return true
		}
	}
	return false
}

// localGet reports whether e is an object taken with Get from a Ref that
// fromLocalRoot accepts.
func (c *checker) localGet(f *frame, e ast.Expr) bool {
	if c.isLocal(f.raw, e) {
		return true
	}
	x, ok := c.getCall(e)
	return ok && c.fromLocalRoot(f, x)
}
