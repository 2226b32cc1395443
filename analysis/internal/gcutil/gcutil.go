// Package gcutil holds the type predicates and allow-directive handling
// shared by the rooting analyzers.
package gcutil

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"
)

// DefaultGCPath is the import path of the collector package.
const DefaultGCPath = "github.com/chazu/rooted/gc"

// AllowDirective suppresses diagnostics on its own line, the next line, or
// the whole declaration it documents.
const AllowDirective = "//gc:allow-unrooted"

// IsGC reports whether t is an instance of the named generic or plain type
// name declared in the collector package.
func IsGC(t types.Type, gcPath, name string) bool {
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := named.Origin().Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == gcPath && obj.Name() == name
}

// IsInstance reports whether t is an instantiated gc.<name>[T], as opposed
// to the generic type itself.
func IsInstance(t types.Type, gcPath, name string) bool {
	if !IsGC(t, gcPath, name) {
		return false
	}
	return types.Unalias(t).(*types.Named).TypeArgs().Len() > 0
}

// ElemIs reports whether t is a slice, array or map whose element, or map
// key, is a gc.<name>.
func ElemIs(t types.Type, gcPath, name string) bool {
	switch u := types.Unalias(t).Underlying().(type) {
	case *types.Slice:
		return IsGC(u.Elem(), gcPath, name)
	case *types.Array:
		return IsGC(u.Elem(), gcPath, name)
	case *types.Map:
		return IsGC(u.Key(), gcPath, name) || IsGC(u.Elem(), gcPath, name)
	}
	return false
}

// Contains reports whether a value of type t holds a gc.<name> by value:
// directly, in a struct field or array element, or, with containers set,
// in a slice element or map value. Pointers, interfaces, functions and
// channels are not followed.
func Contains(t types.Type, gcPath, name string, containers bool) bool {
	return contains(t, gcPath, name, containers, map[types.Type]bool{})
}

func contains(t types.Type, gcPath, name string, containers bool, seen map[types.Type]bool) bool {
	if IsGC(t, gcPath, name) {
		return true
	}
	t = types.Unalias(t)
	if named, ok := t.(*types.Named); ok {
		if seen[named] {
			return false
		}
		seen[named] = true
		return contains(named.Underlying(), gcPath, name, containers, seen)
	}
	switch u := t.(type) {
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			if contains(u.Field(i).Type(), gcPath, name, containers, seen) {
				return true
			}
		}
	case *types.Array:
		return contains(u.Elem(), gcPath, name, containers, seen)
	case *types.Slice:
		return containers && contains(u.Elem(), gcPath, name, containers, seen)
	case *types.Map:
		return containers && (contains(u.Key(), gcPath, name, containers, seen) ||
			contains(u.Elem(), gcPath, name, containers, seen))
	}
	return false
}

// Allowed records the source ranges exempted by AllowDirective.
type Allowed struct {
	fset  *token.FileSet
	lines map[string]map[int]bool
	decls []span
}

type span struct {
	pos, end token.Pos
}

// NewAllowed scans files for allow directives.
func NewAllowed(fset *token.FileSet, files []*ast.File) *Allowed {
	a := &Allowed{fset: fset, lines: make(map[string]map[int]bool)}
	for _, file := range files {
		for _, cg := range file.Comments {
			for _, c := range cg.List {
				if !isAllow(c.Text) {
					continue
				}
				p := fset.Position(c.Slash)
				if a.lines[p.Filename] == nil {
					a.lines[p.Filename] = make(map[int]bool)
				}
				a.lines[p.Filename][p.Line] = true
				a.lines[p.Filename][p.Line+1] = true
			}
		}
		for _, decl := range file.Decls {
			var doc *ast.CommentGroup
			switch d := decl.(type) {
			case *ast.FuncDecl:
				doc = d.Doc
			case *ast.GenDecl:
				doc = d.Doc
			}
			if doc != nil && hasAllow(doc) {
				a.decls = append(a.decls, span{decl.Pos(), decl.End()})
			}
		}
	}
	return a
}

// Allows reports whether a diagnostic at pos is suppressed.
func (a *Allowed) Allows(pos token.Pos) bool {
	for _, s := range a.decls {
		if pos >= s.pos && pos < s.end {
			return true
		}
	}
	p := a.fset.Position(pos)
	return a.lines[p.Filename][p.Line]
}

func isAllow(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), AllowDirective)
}

func hasAllow(doc *ast.CommentGroup) bool {
	for _, c := range doc.List {
		if isAllow(c.Text) {
			return true
		}
	}
	return false
}
