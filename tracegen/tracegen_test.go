package tracegen

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const gcStub = `package gc

type ID uint64

type Tracer interface{ Visit(id ID) }

type Header struct {
	id   ID
	self Object
}

func (h *Header) GCHeader() *Header { return h }

type Object interface {
	Trace(tr Tracer)
	GCHeader() *Header
}

type Edge[T Object] struct{ obj T }

func (e Edge[T]) Trace(tr Tracer) {}
`

type stubImporter map[string]*types.Package

func (m stubImporter) Import(path string) (*types.Package, error) {
	if p, ok := m[path]; ok {
		return p, nil
	}
	return nil, errors.New("unknown import " + path)
}

// buildFromSource type-checks src against a stub collector package and
// builds its model. Missing Trace methods are type errors and are ignored,
// as the package loader ignores them.
func buildFromSource(t *testing.T, src string) (*PackageModel, error) {
	t.Helper()
	fset := token.NewFileSet()

	gcFile, err := parser.ParseFile(fset, "gc.go", gcStub, 0)
	if err != nil {
		t.Fatalf("parsing gc stub: %v", err)
	}
	gcPkg, err := (&types.Config{}).Check(DefaultGCPath, fset, []*ast.File{gcFile}, nil)
	if err != nil {
		t.Fatalf("checking gc stub: %v", err)
	}

	file, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing source: %v", err)
	}
	info := &types.Info{Defs: map[*ast.Ident]types.Object{}}
	conf := &types.Config{
		Importer: stubImporter{DefaultGCPath: gcPkg},
		Error:    func(error) {},
	}
	pkg, _ := conf.Check("example.com/p", fset, []*ast.File{file}, info)
	return BuildModel(fset, []*ast.File{file}, pkg, info, DefaultGCPath)
}

func findType(t *testing.T, model *PackageModel, name string) *TypeModel {
	t.Helper()
	for i := range model.Types {
		if model.Types[i].Name == name {
			return &model.Types[i]
		}
	}
	t.Fatalf("type %s not in model", name)
	return nil
}

func findField(t *testing.T, tm *TypeModel, name string) *FieldModel {
	t.Helper()
	for i := range tm.Fields {
		if tm.Fields[i].Name == name {
			return &tm.Fields[i]
		}
	}
	t.Fatalf("field %s.%s not in model", tm.Name, name)
	return nil
}

// ---------------------------------------------------------------------------
// Model building
// ---------------------------------------------------------------------------

const documentSrc = `package p

import "github.com/chazu/rooted/gc"

//gc:traceable
type Node struct {
	gc.Header
	name   string
	parent gc.Edge[*Node]
}

//gc:traceable
type Window struct {
	gc.Header
	document gc.Edge[*Document]
}

//gc:traceable
type Document struct {
	Node
	window         gc.Edge[*Window]
	isHTMLDocument bool
}

func (n *Node) Trace(tr gc.Tracer)   {}
func (w *Window) Trace(tr gc.Tracer) {}

type notAnnotated struct {
	e gc.Edge[*Node]
}

//gc:traceable
type Containers struct {
	gc.Header
	kids   []gc.Edge[*Node]
	grid   [2][]gc.Edge[*Node]
	byName map[string]gc.Edge[*Node]
	nested []Node
	inline struct {
		a    gc.Edge[*Node]
		skip int
	}
	count int
	done  chan struct{} ` + "`gc:\"untraced\"`" + `
	hook  func()        ` + "`gc:\"untraced\"`" + `
}
`

func TestBuildModelDocument(t *testing.T) {
	model, err := buildFromSource(t, documentSrc)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	if len(model.Types) != 4 {
		t.Fatalf("found %d types, want 4 (unannotated types are skipped)", len(model.Types))
	}

	doc := findType(t, model, "Document")
	if f := findField(t, doc, "Node"); !f.Embedded || f.Plan == nil || f.Plan.Kind != PlanCall {
		t.Errorf("Document.Node = %+v, want embedded call", f)
	}
	if f := findField(t, doc, "window"); f.Plan == nil || f.Plan.Kind != PlanEdge {
		t.Errorf("Document.window plan = %v, want edge", f.Plan)
	}
	if f := findField(t, doc, "isHTMLDocument"); f.Plan != nil {
		t.Errorf("Document.isHTMLDocument plan = %v, want none", f.Plan)
	}

	node := findType(t, model, "Node")
	if f := findField(t, node, "Header"); f.Plan != nil {
		t.Errorf("Node.Header traced: %v", f.Plan)
	}
}

func TestBuildModelContainers(t *testing.T) {
	model, err := buildFromSource(t, documentSrc)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	c := findType(t, model, "Containers")

	tests := []struct {
		field string
		kind  PlanKind
		elem  PlanKind
	}{
		{"kids", PlanIndex, PlanEdge},
		{"grid", PlanIndex, PlanIndex},
		{"byName", PlanRange, PlanEdge},
		{"nested", PlanIndex, PlanCall},
		{"inline", PlanStruct, 0},
	}
	for _, tt := range tests {
		f := findField(t, c, tt.field)
		if f.Plan == nil || f.Plan.Kind != tt.kind {
			t.Errorf("%s plan = %v, want %s", tt.field, f.Plan, tt.kind)
			continue
		}
		if tt.elem != 0 && (f.Plan.Elem == nil || f.Plan.Elem.Kind != tt.elem) {
			t.Errorf("%s element plan = %v, want %s", tt.field, f.Plan.Elem, tt.elem)
		}
	}
	for _, name := range []string{"count", "done", "hook"} {
		if f := findField(t, c, name); f.Plan != nil {
			t.Errorf("%s traced: %v", name, f.Plan)
		}
	}
	if f := findField(t, c, "inline"); len(f.Plan.Fields) != 1 {
		t.Errorf("inline struct traces %d fields, want 1", len(f.Plan.Fields))
	}
}

func TestBuildModelRejectsUntraceableFields(t *testing.T) {
	src := `package p

import "github.com/chazu/rooted/gc"

//gc:traceable
type Node struct {
	gc.Header
	next gc.Edge[*Node]
}

func (n *Node) Trace(tr gc.Tracer) {}

type holder struct {
	e gc.Edge[*Node]
}

//gc:traceable
type Bad struct {
	gc.Header
	raw     *Node
	any     interface{}
	fn      func()
	ch      chan int
	hidden  *holder
	keyed   map[gc.Edge[*Node]]int
	skipped gc.Edge[*Node] ` + "`gc:\"untraced\"`" + `
	fine    *Node          ` + "`gc:\"untraced\"`" + `
	boxed   box
	quiet   box ` + "`gc:\"untraced\"`" + `
	muted   silent
}

type box struct {
	v any
}

type silent struct {
	v any ` + "`gc:\"untraced\"`" + `
}
`
	_, err := buildFromSource(t, src)
	var list ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("err = %v, want ErrorList", err)
	}

	want := map[string]string{
		"raw":     msgObjectPointer,
		"any":     msgOpaque,
		"fn":      msgOpaque,
		"ch":      msgOpaque,
		"hidden":  msgEdgePointer,
		"keyed":   msgMapKey,
		"skipped": msgUntracedEdge,
		"boxed":   msgOpaque,
	}
	if len(list) != len(want) {
		t.Fatalf("got %d errors, want %d:\n%v", len(list), len(want), list)
	}
	for _, fe := range list {
		if fe.Type != "Bad" {
			t.Errorf("error on type %s, want Bad", fe.Type)
		}
		if want[fe.Field] != fe.Message {
			t.Errorf("%s: message %q, want %q", fe.Field, fe.Message, want[fe.Field])
		}
		if fe.Pos.Line < 20 || fe.Pos.Filename != "p.go" {
			t.Errorf("%s: position %s", fe.Field, fe.Pos)
		}
	}
	if !strings.Contains(list[0].Error(), "p.go:20:") {
		t.Errorf("first error = %q, want it positioned at p.go:20", list[0].Error())
	}
}

func TestBuildModelRejectsNonStruct(t *testing.T) {
	src := `package p

//gc:traceable
type IDs []int
`
	_, err := buildFromSource(t, src)
	if err == nil || !strings.Contains(err.Error(), "only struct types") {
		t.Errorf("err = %v, want struct-only error", err)
	}
}

// ---------------------------------------------------------------------------
// Generation
// ---------------------------------------------------------------------------

func TestGenerate(t *testing.T) {
	model, err := buildFromSource(t, documentSrc)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	code, err := Generate(model)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		"// Code generated by tracegen. DO NOT EDIT.",
		"package p",
		"func (x *Document) Trace(tr gc.Tracer) {",
		"x.Node.Trace(tr)",
		"x.window.Trace(tr)",
		"for i := range x.kids {",
		"x.grid[i][i1].Trace(tr)",
		"for _, v := range x.byName {",
		"x.nested[i].Trace(tr)",
		"x.inline.a.Trace(tr)",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("generated code missing %q", want)
		}
	}
	for _, bad := range []string{"isHTMLDocument", "notAnnotated", "x.count", "x.done", "x.hook", "Header.Trace"} {
		if strings.Contains(code, bad) {
			t.Errorf("generated code mentions %q", bad)
		}
	}

	goldenFile := filepath.Join("testdata", "document.trace.go.golden")
	updateGolden(t, goldenFile, code)
	compareGolden(t, goldenFile, code)
}

// TestCheckedInTraceIsFresh regenerates the trace of the dom and script
// packages and compares it with the files in the tree.
func TestCheckedInTraceIsFresh(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages")
	}
	for _, dir := range []string{"../dom", "../script"} {
		model, err := IntrospectPackage(dir, Options{})
		if err != nil {
			t.Fatalf("IntrospectPackage(%s): %v", dir, err)
		}
		code, err := Generate(model)
		if err != nil {
			t.Fatalf("Generate(%s): %v", dir, err)
		}
		onDisk, err := os.ReadFile(filepath.Join(dir, OutputFile))
		if err != nil {
			t.Fatalf("reading checked-in trace: %v", err)
		}
		if normalize(code) != normalize(string(onDisk)) {
			t.Errorf("%s/%s is stale; run rooted gen", dir, OutputFile)
		}
	}
}

// normalize drops import lines and whitespace so formatting differences
// between renderer versions do not matter.
func normalize(code string) string {
	var b strings.Builder
	for _, line := range strings.Split(code, "\n") {
		if strings.HasPrefix(line, "import") {
			continue
		}
		b.WriteString(strings.Join(strings.Fields(line), ""))
	}
	return b.String()
}

func TestWriteFileRemovesStale(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, OutputFile)
	if err := os.WriteFile(stale, []byte("package p\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := WriteFile(&PackageModel{Name: "p", Dir: dir, GCPath: DefaultGCPath})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q for an empty model", path)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale generated file not removed")
	}
}

// Golden file helpers

func updateGolden(t *testing.T, path, content string) {
	t.Helper()
	if os.Getenv("UPDATE_GOLDEN") == "" {
		return
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating testdata dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("updating golden file: %v", err)
	}
}

func compareGolden(t *testing.T, path, got string) {
	t.Helper()
	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Logf("Golden file %s does not exist. Run with UPDATE_GOLDEN=1 to create.", path)
		return
	}
	if err != nil {
		t.Fatalf("reading golden file: %v", err)
	}
	if string(expected) != got {
		t.Errorf("output differs from golden file %s.\nRun with UPDATE_GOLDEN=1 to update.", path)
	}
}
