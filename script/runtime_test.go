package script

import (
	"errors"
	"testing"

	"github.com/chazu/rooted/dom"
	"github.com/chazu/rooted/gc"
)

func TestHandleKeepsObjectAlive(t *testing.T) {
	h := gc.NewHeap(gc.WithTraceVerification())
	rt := NewRuntime(h)

	s := h.Enter()
	obj := rt.NewObject("Point").Root(s)
	SetValue(obj.Borrow(), "x", "1")
	hid := rt.Hold(gc.Erase(obj.Borrow()), "session")
	id := obj.ID()
	s.Exit()

	h.Collect()
	if !h.IsLive(id) {
		t.Fatal("object held by a script handle was collected")
	}
	if !h.IsProtected(id) {
		t.Error("IsProtected = false for a handle target")
	}

	s = h.Enter()
	r, err := rt.Resolve(s, hid)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := gc.Downcast[*Object](r.Borrow())
	if !ok {
		t.Fatal("resolved handle is not an Object")
	}
	if v, _ := Value(p, "x"); v != "1" {
		t.Errorf("x = %q, want 1", v)
	}
	if got := rt.Handles().ClassName(hid); got != "Point" {
		t.Errorf("handle class = %q, want Point", got)
	}
	s.Exit()

	rt.ReleaseSession("session")
	h.Collect()
	if h.IsLive(id) {
		t.Error("object survived after its session was released")
	}

	s = h.Enter()
	defer s.Exit()
	if _, err := rt.Resolve(s, hid); !errors.Is(err, ErrNoHandle) {
		t.Errorf("Resolve after release: err = %v, want ErrNoHandle", err)
	}
}

func TestGlobalSurvivesCollection(t *testing.T) {
	h := gc.NewHeap()
	rt := NewRuntime(h)

	s := h.Enter()
	g := rt.Global(s)
	child := rt.NewObject("Object").Root(s)
	SetProperty(g.Borrow(), "child", gc.Erase(child.Borrow()))
	childID := child.ID()
	s.Exit()

	h.Collect()
	if !h.IsLive(childID) {
		t.Fatal("property of the global object was collected")
	}

	s = h.Enter()
	defer s.Exit()
	g = rt.Global(s)
	if keys := Keys(g.Borrow()); len(keys) != 1 || keys[0] != "child" {
		t.Errorf("Keys = %v", keys)
	}
	got, ok := GetProperty(g.Borrow(), "child")
	if !ok || got.ID() != childID {
		t.Errorf("GetProperty = %s, %v", got.ID(), ok)
	}
	got.Discard()

	if !DeleteProperty(g.Borrow(), "child") || DeleteProperty(g.Borrow(), "child") {
		t.Error("DeleteProperty did not delete exactly once")
	}
	h.Collect()
	if h.IsLive(childID) {
		t.Error("deleted property's target survived")
	}
}

func TestReflectorIdentity(t *testing.T) {
	h := gc.NewHeap(gc.WithTraceVerification())
	rt := NewRuntime(h)

	s := h.Enter()
	win := dom.Open(h, "about:blank").Root(s)
	native := gc.Erase(win.Borrow())

	r1 := rt.Reflect(native).Root(s)
	r2 := rt.Reflect(native).Root(s)
	if r1.ID() != r2.ID() {
		t.Errorf("Reflect returned %s then %s for the same object", r1.ID(), r2.ID())
	}
	if !IsReflector(r1.Borrow()) {
		t.Error("reflector has no native edge")
	}
	back, ok := NativeOf(r1.Borrow())
	if !ok || back.ID() != win.ID() {
		t.Errorf("NativeOf = %s, want %s", back.ID(), win.ID())
	}
	back.Discard()

	// The reflector alone keeps its native object alive.
	winID := win.ID()
	win.Release()
	h.Collect()
	if !h.IsLive(winID) {
		t.Fatal("native object reachable from a rooted reflector was collected")
	}
	s.Exit()

	h.Collect()
	if rt.Reflectors() != 0 {
		t.Errorf("Reflectors = %d after collection, want 0", rt.Reflectors())
	}
	if h.IsLive(winID) {
		t.Error("window survived after every root was dropped")
	}
}

// TestCrossBoundaryCycle builds native element A whose click listener is
// script function B, where B holds A's reflector in a property:
// A -> B -> reflector(A) -> A. A script handle on B keeps the whole cycle
// alive; once it is released and no native root remains, the collector
// reclaims all of it.
func TestCrossBoundaryCycle(t *testing.T) {
	h := gc.NewHeap(gc.WithTraceVerification())
	rt := NewRuntime(h)

	s := h.Enter()
	doc := dom.NewDocument(h, "about:blank", true).Root(s)
	tmp, err := dom.CreateElement(doc.Borrow(), "button")
	if err != nil {
		t.Fatal(err)
	}
	a := tmp.Root(s)
	aObj := gc.Erase(a.Borrow())

	clicks := 0
	b := rt.NewFunction("onclick", func(rt *Runtime, this gc.Ref[gc.Object], args []gc.Ref[gc.Object]) error {
		clicks++
		return nil
	}).Root(s)
	refl := rt.Reflect(aObj).Root(s)
	SetProperty(b.Borrow(), "element", gc.Erase(refl.Borrow()))
	dom.AddEventListener(dom.TargetOf(a.Borrow()), "click", gc.Erase(b.Borrow()), false)

	handle := rt.Hold(gc.Erase(b.Borrow()), "page")
	ids := []gc.ID{doc.ID(), a.ID(), b.ID(), refl.ID()}
	s.Exit()

	h.Collect()
	for _, id := range ids[1:] {
		if !h.IsLive(id) {
			t.Fatalf("%s collected while the cycle is held by a script handle", id)
		}
	}

	// Dispatch through the cycle while it is alive.
	s = h.Enter()
	r, err := rt.Resolve(s, handle)
	if err != nil {
		t.Fatal(err)
	}
	fn, _ := gc.Downcast[*Object](r.Borrow())
	el, ok := GetProperty(fn, "element")
	if !ok {
		t.Fatal("function lost its element property")
	}
	reflector, _ := gc.Downcast[*Object](el.Root(s).Borrow())
	nativeTmp, _ := NativeOf(reflector)
	button, ok := gc.Downcast[*dom.Element](nativeTmp.Root(s).Borrow())
	if !ok {
		t.Fatal("reflector does not expose an element")
	}
	ev := dom.NewEvent(h, "click", false, false).Root(s)
	if err := dom.Dispatch(rt, dom.NodeOf(button), ev.Borrow()); err != nil {
		t.Fatal(err)
	}
	if clicks != 1 {
		t.Errorf("clicks = %d, want 1", clicks)
	}
	s.Exit()

	rt.Release(handle)
	stats := h.Collect()
	for _, id := range ids {
		if h.IsLive(id) {
			t.Errorf("%s survived after the cycle became unreachable", id)
		}
	}
	if stats.Live != 1 {
		t.Errorf("Live = %d, want only the global object", stats.Live)
	}
}

// TestCrossBoundaryWithAndWithoutCycle builds the element/function graph
// with and without the listener edge that closes the cycle. Holding the
// element keeps the function alive only through that edge; once the handle
// goes, both graphs are collected alike.
func TestCrossBoundaryWithAndWithoutCycle(t *testing.T) {
	tests := []struct {
		name   string
		listen bool
	}{
		{"cycle", true},
		{"no cycle", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := gc.NewHeap(gc.WithTraceVerification())
			rt := NewRuntime(h)

			s := h.Enter()
			doc := dom.NewDocument(h, "about:blank", true).Root(s)
			tmp, err := dom.CreateElement(doc.Borrow(), "button")
			if err != nil {
				t.Fatal(err)
			}
			a := tmp.Root(s)
			b := rt.NewFunction("onclick", func(rt *Runtime, this gc.Ref[gc.Object], args []gc.Ref[gc.Object]) error {
				return nil
			}).Root(s)
			refl := rt.Reflect(gc.Erase(a.Borrow())).Root(s)
			SetProperty(b.Borrow(), "element", gc.Erase(refl.Borrow()))
			if tt.listen {
				dom.AddEventListener(dom.TargetOf(a.Borrow()), "click", gc.Erase(b.Borrow()), false)
			}

			handle := rt.Hold(gc.Erase(a.Borrow()), "page")
			ids := []gc.ID{doc.ID(), a.ID(), b.ID(), refl.ID()}
			s.Exit()

			h.Collect()
			if !h.IsLive(a.ID()) {
				t.Fatal("element collected while held by a script handle")
			}
			if got := h.IsLive(b.ID()); got != tt.listen {
				t.Errorf("function live = %v, want %v", got, tt.listen)
			}
			if got := h.IsLive(refl.ID()); got != tt.listen {
				t.Errorf("reflector live = %v, want %v", got, tt.listen)
			}

			rt.Release(handle)
			stats := h.Collect()
			for _, id := range ids {
				if h.IsLive(id) {
					t.Errorf("%s survived after the graph became unreachable", id)
				}
			}
			if stats.Live != 1 {
				t.Errorf("Live = %d, want only the global object", stats.Live)
			}
		})
	}
}

func TestInvokeNotCallable(t *testing.T) {
	h := gc.NewHeap()
	rt := NewRuntime(h)
	s := h.Enter()
	defer s.Exit()

	obj := rt.NewObject("Object").Root(s)
	err := rt.Invoke(gc.Erase(obj.Borrow()), gc.Erase(obj.Borrow()))
	if !errors.Is(err, ErrNotCallable) {
		t.Errorf("err = %v, want ErrNotCallable", err)
	}

	failing := rt.NewFunction("boom", func(*Runtime, gc.Ref[gc.Object], []gc.Ref[gc.Object]) error {
		return errors.New("thrown")
	}).Root(s)
	err = rt.Invoke(gc.Erase(failing.Borrow()), gc.Erase(obj.Borrow()))
	if err == nil || err.Error() != "boom: thrown" {
		t.Errorf("err = %v, want boom: thrown", err)
	}
}
