package heapdump

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/rooted/dom"
	"github.com/chazu/rooted/gc"
	"github.com/chazu/rooted/script"
)

// world is a window rooted in an open scope, a script runtime whose global
// is held by a handle, and a document tree window > document > div > text.
// orphan is an element that nothing references.
type world struct {
	h      *gc.Heap
	s      *gc.Scope
	rt     *script.Runtime
	global gc.ID
	win    gc.ID
	doc    gc.ID
	div    gc.ID
	text   gc.ID
	orphan gc.ID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	h := gc.NewHeap()
	w := &world{h: h, rt: script.NewRuntime(h)}
	w.s = h.Enter()
	t.Cleanup(w.s.Exit)

	win := dom.Open(h, "https://example.test/").Root(w.s)
	w.win = win.ID()

	inner := h.Enter()
	defer inner.Exit()

	w.global = w.rt.Global(inner).ID()
	docTmp, ok := dom.DocumentOf(win.Borrow())
	if !ok {
		t.Fatal("window has no document")
	}
	doc := docTmp.Root(inner)
	w.doc = doc.ID()

	div := mustElement(t, inner, doc.Borrow(), "div")
	if err := dom.AppendChild(dom.NodeOf(doc.Borrow()), dom.NodeOf(div.Borrow())); err != nil {
		t.Fatal(err)
	}
	w.div = div.ID()

	text := dom.CreateTextNode(doc.Borrow(), "hi").Root(inner)
	if err := dom.AppendChild(dom.NodeOf(div.Borrow()), dom.NodeOf(text.Borrow())); err != nil {
		t.Fatal(err)
	}
	w.text = text.ID()

	w.orphan = mustElement(t, inner, doc.Borrow(), "span").ID()
	return w
}

func mustElement(t *testing.T, s *gc.Scope, doc gc.Ref[*dom.Document], name string) *gc.Root[*dom.Element] {
	t.Helper()
	tmp, err := dom.CreateElement(doc, name)
	if err != nil {
		t.Fatal(err)
	}
	return tmp.Root(s)
}

// ---------------------------------------------------------------------------
// Capture and queries
// ---------------------------------------------------------------------------

func TestCapture(t *testing.T) {
	w := newWorld(t)
	snap := Capture(w.h, "initial")

	if len(snap.Objects) != w.h.Len() {
		t.Errorf("captured %d objects, heap has %d", len(snap.Objects), w.h.Len())
	}
	if got := snap.RootSources(w.win); !slices.Equal(got, []string{"registry"}) {
		t.Errorf("window roots = %v, want [registry]", got)
	}
	if got := snap.RootSources(w.global); !slices.Contains(got, "script") {
		t.Errorf("global roots = %v, want script", got)
	}
	if got := snap.RootSources(w.text); len(got) != 0 {
		t.Errorf("text roots = %v, want none", got)
	}

	doc, ok := snap.Object(w.doc)
	if !ok {
		t.Fatal("document missing from snapshot")
	}
	if doc.Type != "dom.Document" {
		t.Errorf("document type = %q", doc.Type)
	}
	if !slices.Contains(doc.Edges, w.win) || !slices.Contains(doc.Edges, w.div) {
		t.Errorf("document edges = %v, want window %s and div %s", doc.Edges, w.win, w.div)
	}
	if got := snap.CountByType()["dom.Element"]; got != 2 {
		t.Errorf("element count = %d, want 2", got)
	}
	if got := snap.Referrers(w.text); !slices.Equal(got, []gc.ID{w.div}) {
		t.Errorf("text referrers = %v, want [%s]", got, w.div)
	}
}

func TestGarbageMatchesCollection(t *testing.T) {
	w := newWorld(t)
	before := Capture(w.h, "before")

	if got := before.Garbage(); !slices.Equal(got, []gc.ID{w.orphan}) {
		t.Fatalf("garbage = %v, want [%s]", got, w.orphan)
	}
	if slices.Contains(before.Reachable(), w.orphan) {
		t.Error("orphan reported reachable")
	}

	stats := w.h.Collect()
	if stats.Swept != 1 {
		t.Errorf("swept %d, want 1", stats.Swept)
	}
	after := Capture(w.h, "after")
	if len(after.Garbage()) != 0 {
		t.Errorf("garbage after collection = %v", after.Garbage())
	}
	if len(after.Reachable()) != len(after.Objects) {
		t.Errorf("reachable %d of %d objects", len(after.Reachable()), len(after.Objects))
	}
}

func TestPathsToRoots(t *testing.T) {
	w := newWorld(t)
	snap := Capture(w.h, "paths")

	paths := snap.PathsToRoots(w.text, 3)
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1: %v", len(paths), paths)
	}
	want := []gc.ID{w.text, w.div, w.doc, w.win}
	if !slices.Equal(paths[0].IDs, want) {
		t.Errorf("path = %v, want %v", paths[0].IDs, want)
	}
	if paths[0].Root() != w.win {
		t.Errorf("path root = %s, want %s", paths[0].Root(), w.win)
	}
	formatted := paths[0].Format(snap)
	for _, part := range []string{"dom.Text", "dom.Element", "dom.Window", "[registry]"} {
		if !strings.Contains(formatted, part) {
			t.Errorf("Format() = %q, missing %q", formatted, part)
		}
	}

	if got := snap.PathsToRoots(w.win, 3); len(got) != 1 || len(got[0].IDs) != 1 {
		t.Errorf("rooted object paths = %v, want itself", got)
	}
	if got := snap.PathsToRoots(w.orphan, 3); len(got) != 0 {
		t.Errorf("orphan paths = %v, want none", got)
	}
	if got := snap.PathsToRoots(w.text, 0); got != nil {
		t.Errorf("maxPaths 0 = %v, want nil", got)
	}
	if got := snap.PathsToRoots(9999, 1); got != nil {
		t.Errorf("unknown object paths = %v, want nil", got)
	}
}

// ---------------------------------------------------------------------------
// Wire format and archive
// ---------------------------------------------------------------------------

func TestMarshalDeterministic(t *testing.T) {
	w := newWorld(t)
	snap := Capture(w.h, "wire")

	a, err := Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}

	got, err := Unmarshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "wire" || got.Taken.Unix() != snap.Taken.Unix() {
		t.Errorf("decoded header = %q %v", got.Label, got.Taken)
	}
	if !slices.Equal(got.Garbage(), snap.Garbage()) {
		t.Errorf("decoded garbage = %v, want %v", got.Garbage(), snap.Garbage())
	}

	if _, err := Unmarshal([]byte{0xff}); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	st, err := OpenStore(ctx, filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	first, err := st.Save(ctx, Capture(w.h, "first"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	w.h.Collect()
	second, err := st.Save(ctx, Capture(w.h, "second"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != first || entries[1].ID != second {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Objects != entries[1].Objects+1 {
		t.Errorf("object counts %d then %d, want one swept", entries[0].Objects, entries[1].Objects)
	}

	snap, err := st.Load(ctx, first)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := snap.Garbage(); !slices.Equal(got, []gc.ID{w.orphan}) {
		t.Errorf("archived garbage = %v, want [%s]", got, w.orphan)
	}

	id, latest, err := st.Latest(ctx)
	if err != nil || id != second || latest.Label != "second" {
		t.Errorf("Latest = %d %v %v", id, latest, err)
	}

	if err := st.Delete(ctx, first); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load(ctx, first); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load deleted = %v, want ErrSnapshotNotFound", err)
	}
	if err := st.Delete(ctx, first); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Delete twice = %v, want ErrSnapshotNotFound", err)
	}
}
