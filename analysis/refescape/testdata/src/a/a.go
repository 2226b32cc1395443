package a

import "github.com/chazu/rooted/gc"

type Window struct{ gc.Header }

func (w *Window) Trace(tr gc.Tracer) {}

type Document struct {
	gc.Header
	window gc.Edge[*Window]
}

type holder struct {
	win  gc.Ref[*Window]   // want `gc.Ref stored in a struct field`
	list []gc.Ref[*Window] // want `gc.Ref stored in a struct field`
	root *gc.Root[*Window]
	hook func(gc.Ref[*Window]) error
	temp gc.Temp[*Window]
}

//gc:allow-unrooted
type cache struct {
	last gc.Ref[*Window]
}

var current gc.Ref[*Window] // want `package variable current holds a gc.Ref`

var saved any

func store(r gc.Ref[*Window]) {
	current = r // want `gc.Ref assigned to package variable current`
	saved = r   // want `gc.Ref assigned to package variable saved`
	saved = r.Temp()
}

// ----------------------------------------------------------------------------
// Returns
// ----------------------------------------------------------------------------

func openWindow(h *gc.Heap) gc.Ref[*Window] {
	s := h.Enter()
	defer s.Exit()
	w := gc.New(h, &Window{}).Root(s)
	return w.Borrow() // want `returns a gc.Ref borrowed from a root whose scope exits with this function`
}

func openChained(h *gc.Heap) gc.Ref[*Window] {
	s := h.Enter()
	defer s.Exit()
	return gc.New(h, &Window{}).Root(s).Borrow() // want `returns a gc.Ref borrowed`
}

func openErased(h *gc.Heap) gc.Ref[gc.Object] {
	s := h.Enter()
	defer s.Exit()
	ref := gc.New(h, &Window{}).Root(s).Borrow()
	obj := gc.Erase(ref)
	return obj // want `returns a gc.Ref borrowed`
}

func openRoot(h *gc.Heap) *gc.Root[*Window] {
	s := h.Enter()
	defer s.Exit()
	return gc.New(h, &Window{}).Root(s) // want `returns a \*gc.Root owned by a scope that exits with this function`
}

func windowOf(h *gc.Heap, d *Document) gc.Ref[*Window] {
	s := h.Enter()
	defer s.Exit()
	w, ok := d.window.Root(s)
	if !ok {
		return gc.Ref[*Window]{}
	}
	return w.Borrow() // want `returns a gc.Ref borrowed from a root whose scope exits with this function`
}

func lookup(h *gc.Heap, id gc.ID) gc.Ref[gc.Object] {
	s := h.Enter()
	defer s.Exit()
	r, ok := s.RootID(id)
	if !ok {
		return gc.Ref[gc.Object]{}
	}
	return r.Borrow() // want `returns a gc.Ref borrowed`
}

func openTemp(h *gc.Heap) gc.Temp[*Window] {
	s := h.Enter()
	defer s.Exit()
	w := gc.New(h, &Window{}).Root(s)
	return w.Borrow().Temp()
}

func rootIn(s *gc.Scope, h *gc.Heap) gc.Ref[*Window] {
	return gc.New(h, &Window{}).Root(s).Borrow()
}

func reborrow(s *gc.Scope, r gc.Ref[*Window]) gc.Ref[gc.Object] {
	return gc.Erase(r)
}

func keep(h *gc.Heap) gc.Ref[*Window] {
	s := h.Enter()
	defer s.Exit()
	w := gc.New(h, &Window{}).Root(s)
	return w.Borrow() //gc:allow-unrooted
}

// ----------------------------------------------------------------------------
// Goroutines
// ----------------------------------------------------------------------------

func spawn(r gc.Ref[*Window], use func(gc.Ref[*Window])) {
	go use(r) // want `gc.Ref passed to a goroutine`
	go func() {
		_ = r.Get() // want `gc.Ref r captured by a goroutine`
	}()
	t := r.Temp()
	go func() {
		_ = t
	}()
	go func(inner gc.Ref[*Window]) {
		_ = inner.Get()
	}(r) // want `gc.Ref passed to a goroutine`
}

// ----------------------------------------------------------------------------
// Objects taken with Get
// ----------------------------------------------------------------------------

var kept *Window

type view struct {
	win *Window
}

func pin(h *gc.Heap, d *Document) {
	s := h.Enter()
	defer s.Exit()
	w, _ := d.window.Root(s)
	kept = w.Borrow().Get() // want `object from gc.Ref.Get assigned to package variable kept`
}

func openRaw(h *gc.Heap, d *Document) *Window {
	s := h.Enter()
	defer s.Exit()
	w, _ := d.window.Root(s)
	return w.Borrow().Get() // want `returns an object taken from a gc.Ref whose root's scope exits with this function`
}

func openRawVar(h *gc.Heap) *Window {
	s := h.Enter()
	defer s.Exit()
	ref := gc.New(h, &Window{}).Root(s).Borrow()
	raw := ref.Get()
	return raw // want `returns an object taken from a gc.Ref`
}

func unwrap(r gc.Ref[*Window]) *Window {
	return r.Get()
}

func remember(v *view, r gc.Ref[*Window]) view {
	v.win = r.Get()           // want `object from gc.Ref.Get stored in struct field win`
	return view{win: r.Get()} // want `object from gc.Ref.Get stored in struct field win`
}

func spawnRaw(r gc.Ref[*Window], use func(*Window)) {
	w := r.Get()
	go use(w) // want `object from gc.Ref.Get passed to a goroutine`
	go func() {
		_ = w // want `object w from gc.Ref.Get captured by a goroutine`
	}()
}

// ----------------------------------------------------------------------------
// Closures kept by the heap
// ----------------------------------------------------------------------------

func newFunction(h *gc.Heap, fn func()) gc.Temp[*Window] {
	return gc.New(h, &Window{})
}

func run(fn func()) { fn() }

func schedule(h *gc.Heap, s *gc.Scope, r gc.Ref[*Window]) {
	w := gc.New(h, &Window{}).Root(s)
	newFunction(h, func() {
		_ = w.Borrow() // want `w captured by a function stored in a collector-owned object`
		_ = r          // want `r captured by a function stored in a collector-owned object`
	})
	count := 0
	newFunction(h, func() { count++ })
	run(func() { _ = r.Get() })
}
