package tracegen

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"reflect"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Options configures introspection.
type Options struct {
	// GCPath is the import path of the collector package. Empty means
	// DefaultGCPath.
	GCPath string
	// Tags are build tags passed to the loader.
	Tags []string
}

func (o Options) gcPath() string {
	if o.GCPath == "" {
		return DefaultGCPath
	}
	return o.GCPath
}

// IntrospectPackage loads the package matching pattern (a directory or import
// path) and returns its traceable types.
//
// The existing generated file is replaced by an empty one while loading, so
// a stale or missing Trace method never changes the result. Type errors are
// tolerated for the same reason: a package whose Trace methods have not been
// generated yet does not type-check.
func IntrospectPackage(pattern string, opts Options) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax,
		Tests: false,
	}
	if len(opts.Tags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(opts.Tags, ",")}
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("pattern %s matched %d packages, want 1", pattern, len(pkgs))
	}
	pkg := pkgs[0]

	// Reload with the generated file blanked if it is present.
	for _, f := range pkg.GoFiles {
		if filepath.Base(f) == OutputFile {
			cfg.Overlay = map[string][]byte{f: []byte("package " + pkg.Name + "\n")}
			if pkgs, err = packages.Load(cfg, pattern); err != nil {
				return nil, fmt.Errorf("loading %s: %w", pattern, err)
			}
			pkg = pkgs[0]
			break
		}
	}

	for _, e := range pkg.Errors {
		if e.Kind != packages.TypeError {
			return nil, fmt.Errorf("package errors: %v", pkg.Errors)
		}
		log.Debugf("ignoring type error in %s: %s", pkg.PkgPath, e.Msg)
	}
	if pkg.Types == nil || pkg.TypesInfo == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}

	dir := ""
	if len(pkg.GoFiles) > 0 {
		dir = filepath.Dir(pkg.GoFiles[0])
	}
	model, err := BuildModel(pkg.Fset, pkg.Syntax, pkg.Types, pkg.TypesInfo, opts.gcPath())
	if err != nil {
		return nil, err
	}
	model.Dir = dir
	return model, nil
}

// BuildModel finds every struct annotated with the traceable directive in
// files and plans its trace. All untraceable fields are reported together
// as an ErrorList.
func BuildModel(fset *token.FileSet, files []*ast.File, pkg *types.Package, info *types.Info, gcPath string) (*PackageModel, error) {
	model := &PackageModel{
		ImportPath: pkg.Path(),
		Name:       pkg.Name(),
		GCPath:     gcPath,
	}
	c := &classifier{gcPath: gcPath}
	var errs ErrorList

	for _, file := range files {
		if filepath.Base(fset.Position(file.Pos()).Filename) == OutputFile {
			continue
		}
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				if !hasDirective(ts.Doc) && !(len(gd.Specs) == 1 && hasDirective(gd.Doc)) {
					continue
				}
				tn, ok := info.Defs[ts.Name].(*types.TypeName)
				if !ok {
					continue
				}
				tm, fieldErrs := c.typeModel(fset, tn, ts)
				errs = append(errs, fieldErrs...)
				if tm != nil {
					model.Types = append(model.Types, *tm)
				}
			}
		}
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return model, nil
}

func hasDirective(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == Directive {
			return true
		}
	}
	return false
}

type classifier struct {
	gcPath string
}

func (c *classifier) typeModel(fset *token.FileSet, tn *types.TypeName, ts *ast.TypeSpec) (*TypeModel, ErrorList) {
	pos := fset.Position(ts.Pos())
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return nil, ErrorList{{Pos: pos, Type: tn.Name(), Field: "-", Message: "alias types cannot be traceable"}}
	}
	if named.TypeParams().Len() > 0 {
		return nil, ErrorList{{Pos: pos, Type: tn.Name(), Field: "-", Message: "generic types are not supported"}}
	}
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return nil, ErrorList{{Pos: pos, Type: tn.Name(), Field: "-", Message: "only struct types can be traceable"}}
	}

	tm := &TypeModel{Name: tn.Name(), Pos: pos}
	var errs ErrorList
	qual := types.RelativeTo(tn.Pkg())
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		untraced := reflect.StructTag(st.Tag(i)).Get("gc") == "untraced"
		fm := FieldModel{
			Name:     f.Name(),
			GoType:   f.Type(),
			TypeStr:  types.TypeString(f.Type(), qual),
			Embedded: f.Embedded(),
			Untraced: untraced,
		}
		if f.Name() == "_" {
			tm.Fields = append(tm.Fields, fm)
			continue
		}

		plan, msg := c.classify(f.Type(), untraced, map[types.Type]bool{})
		if msg != "" {
			errs = append(errs, &FieldError{
				Pos:        fset.Position(f.Pos()),
				Type:       tn.Name(),
				Field:      f.Name(),
				Message:    msg,
				Suggestion: suggestion(msg),
			})
			continue
		}
		fm.Plan = plan
		tm.Fields = append(tm.Fields, fm)
	}
	return tm, errs
}

const (
	msgObjectPointer = "bare pointer to a collector-owned object"
	msgEdgePointer   = "pointer to a value holding edges"
	msgOpaque        = "field may hide references from the collector"
	msgUntracedEdge  = "edge field cannot be untraced"
	msgMapKey        = "map key holds edges"
)

func suggestion(msg string) string {
	switch msg {
	case msgObjectPointer:
		return "use gc.Edge"
	case msgOpaque:
		return `tag the field gc:"untraced" if it never holds collector-owned objects`
	case msgEdgePointer:
		return "store the value inline"
	}
	return ""
}

// classify returns the plan for tracing a value of type t, nil if t holds
// no edges, or a message explaining why t cannot be traced.
func (c *classifier) classify(t types.Type, untraced bool, seen map[types.Type]bool) (*Plan, string) {
	if c.isEdge(t) {
		if untraced {
			return nil, msgUntracedEdge
		}
		return &Plan{Kind: PlanEdge}, ""
	}
	if c.isHeader(t) {
		return nil, ""
	}

	if named, ok := t.(*types.Named); ok {
		if seen[named] {
			return nil, ""
		}
		seen[named] = true
		defer delete(seen, named)

		switch named.Underlying().(type) {
		case *types.Struct:
			// A named struct traces itself; if it has no Trace method
			// the generated call does not compile. Without one its
			// fields are checked here, so opaque fields are reported.
			if !hasTraceMethod(named) {
				if _, msg := c.classify(named.Underlying(), untraced, seen); msg != "" {
					return nil, msg
				}
			}
			if c.holdsEdges(named.Underlying(), seen) {
				return &Plan{Kind: PlanCall}, ""
			}
			return nil, ""
		case *types.Interface:
			if untraced {
				return nil, ""
			}
			return nil, msgOpaque
		}
		if hasTraceMethod(named) {
			if c.holdsEdges(named.Underlying(), seen) {
				return &Plan{Kind: PlanCall}, ""
			}
			return nil, ""
		}
		return c.classify(named.Underlying(), untraced, seen)
	}

	switch u := t.(type) {
	case *types.Basic:
		if u.Kind() == types.UnsafePointer && !untraced {
			return nil, msgOpaque
		}
		return nil, ""

	case *types.Pointer:
		if c.isObject(u) {
			if untraced {
				return nil, ""
			}
			return nil, msgObjectPointer
		}
		if c.holdsEdges(u.Elem(), seen) {
			return nil, msgEdgePointer
		}
		return nil, ""

	case *types.Interface, *types.Signature, *types.Chan:
		if untraced {
			return nil, ""
		}
		return nil, msgOpaque

	case *types.Slice:
		return c.container(PlanIndex, u.Elem(), untraced, seen)
	case *types.Array:
		return c.container(PlanIndex, u.Elem(), untraced, seen)
	case *types.Map:
		if c.holdsEdges(u.Key(), seen) {
			return nil, msgMapKey
		}
		return c.container(PlanRange, u.Elem(), untraced, seen)

	case *types.Struct:
		var fields []FieldPlan
		for i := 0; i < u.NumFields(); i++ {
			f := u.Field(i)
			ft := untraced || reflect.StructTag(u.Tag(i)).Get("gc") == "untraced"
			p, msg := c.classify(f.Type(), ft, seen)
			if msg != "" {
				return nil, msg
			}
			if p != nil {
				fields = append(fields, FieldPlan{Name: f.Name(), Plan: p})
			}
		}
		if len(fields) == 0 {
			return nil, ""
		}
		return &Plan{Kind: PlanStruct, Fields: fields}, ""
	}
	return nil, ""
}

func (c *classifier) container(kind PlanKind, elem types.Type, untraced bool, seen map[types.Type]bool) (*Plan, string) {
	p, msg := c.classify(elem, untraced, seen)
	if msg != "" || p == nil {
		return nil, msg
	}
	return &Plan{Kind: kind, Elem: p}, ""
}

// holdsEdges reports whether a value of type t contains an edge by value.
// Pointers, interfaces and functions are not followed.
func (c *classifier) holdsEdges(t types.Type, seen map[types.Type]bool) bool {
	if c.isEdge(t) {
		return true
	}
	if c.isHeader(t) {
		return false
	}
	if named, ok := t.(*types.Named); ok {
		if seen[named] {
			return false
		}
		seen[named] = true
		defer delete(seen, named)
		return c.holdsEdges(named.Underlying(), seen)
	}
	switch u := t.(type) {
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			if c.holdsEdges(u.Field(i).Type(), seen) {
				return true
			}
		}
	case *types.Slice:
		return c.holdsEdges(u.Elem(), seen)
	case *types.Array:
		return c.holdsEdges(u.Elem(), seen)
	case *types.Map:
		return c.holdsEdges(u.Key(), seen) || c.holdsEdges(u.Elem(), seen)
	}
	return false
}

func (c *classifier) isGCType(t types.Type, name string) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Origin().Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == c.gcPath && obj.Name() == name
}

func (c *classifier) isEdge(t types.Type) bool {
	return c.isGCType(t, "Edge")
}

func (c *classifier) isHeader(t types.Type) bool {
	return c.isGCType(t, "Header")
}

// isObject reports whether p points at a collector-owned object: a type
// carrying the collector's header.
func (c *classifier) isObject(p *types.Pointer) bool {
	obj, _, _ := types.LookupFieldOrMethod(p, true, nil, "GCHeader")
	fn, ok := obj.(*types.Func)
	if !ok {
		return false
	}
	return fn.Pkg() != nil && fn.Pkg().Path() == c.gcPath
}

func hasTraceMethod(named *types.Named) bool {
	mset := types.NewMethodSet(types.NewPointer(named))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		// Only methods declared on the type itself, not promoted ones.
		if sel.Obj().Name() == "Trace" && len(sel.Index()) == 1 {
			return true
		}
	}
	return false
}
