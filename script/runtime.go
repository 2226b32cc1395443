// Package script simulates the script engine that shares the gc heap with
// native code. Its handle store is a gc.RootSource, so an object a script
// holds a handle on survives collection without any native root.
package script

//go:generate go run github.com/chazu/rooted/cmd/rooted gen .

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/rooted/dom"
	"github.com/chazu/rooted/gc"
)

var (
	ErrNotCallable = errors.New("object is not callable")
	ErrNoHandle    = errors.New("no such handle")
)

// GlobalSession owns the handles of the global object and its bindings.
const GlobalSession = "global"

// Runtime is a minimal script engine sharing a gc.Heap with the document
// layer. Scripts keep objects alive through the HandleStore; document
// objects are exposed to scripts through reflectors, one per native object,
// cached weakly so the cache never keeps either side alive.
type Runtime struct {
	heap    *gc.Heap
	handles *HandleStore
	global  string

	mu         sync.Mutex
	reflectors map[gc.ID]*gc.Weak[*Object]
}

var _ dom.Invoker = (*Runtime)(nil)

// NewRuntime creates a runtime on h and registers its handle store as a
// root source.
func NewRuntime(h *gc.Heap) *Runtime {
	rt := &Runtime{
		heap:       h,
		handles:    NewHandleStore(),
		reflectors: make(map[gc.ID]*gc.Weak[*Object]),
	}
	h.AddRootSource(rt.handles)

	global := gc.New(h, &Object{class: "Global"})
	rt.global = rt.handles.Create(global.ID(), "Global", GlobalSession)
	global.Discard()
	return rt
}

// Heap returns the heap the runtime allocates on.
func (rt *Runtime) Heap() *gc.Heap {
	return rt.heap
}

// Handles returns the runtime's handle store.
func (rt *Runtime) Handles() *HandleStore {
	return rt.handles
}

// Global roots the global object in s.
func (rt *Runtime) Global(s *gc.Scope) *gc.Root[*Object] {
	r, err := rt.Resolve(s, rt.global)
	if err != nil {
		// The global handle belongs to the runtime and is never released.
		panic(fmt.Sprintf("script: global object: %v", err))
	}
	obj, ok := gc.Downcast[*Object](r.Borrow())
	if !ok {
		panic("script: global object has wrong type")
	}
	return obj.Temp().Root(s)
}

// NewObject allocates an empty object.
func (rt *Runtime) NewObject(class string) gc.Temp[*Object] {
	return gc.New(rt.heap, &Object{class: class})
}

// NewFunction allocates a callable object.
func (rt *Runtime) NewFunction(name string, fn Func) gc.Temp[*Object] {
	o := &Object{class: "Function", call: fn, values: map[string]string{"name": name}}
	return gc.New(rt.heap, o)
}

// Hold creates a persistent handle on obj for a session and returns its ID.
func (rt *Runtime) Hold(obj gc.Ref[gc.Object], sessionID string) string {
	class := fmt.Sprintf("%T", obj.Get())
	if o, ok := gc.Downcast[*Object](obj); ok {
		class = o.Get().class
	}
	return rt.handles.Create(obj.ID(), class, sessionID)
}

// Resolve roots the object a handle names.
func (rt *Runtime) Resolve(s *gc.Scope, handleID string) (*gc.Root[gc.Object], error) {
	id, ok := rt.handles.Lookup(handleID)
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", handleID, ErrNoHandle)
	}
	r, ok := s.RootID(id)
	if !ok {
		// A handle keeps its target alive, so this is a broken root set.
		return nil, fmt.Errorf("resolve %s: %s: %w", handleID, id, gc.ErrCollected)
	}
	return r, nil
}

// Release drops a handle.
func (rt *Runtime) Release(handleID string) {
	rt.handles.Release(handleID)
}

// ReleaseSession drops every handle a session holds.
func (rt *Runtime) ReleaseSession(sessionID string) int {
	n := rt.handles.ReleaseSession(sessionID)
	log.Debugf("released %d handles of session %s", n, sessionID)
	return n
}

// Reflect returns the reflector exposing native to scripts, creating it on
// first use. While the reflector is alive the same one is returned, so
// script-side identity comparisons hold.
func (rt *Runtime) Reflect(native gc.Ref[gc.Object]) gc.Temp[*Object] {
	s := rt.heap.Enter()
	defer s.Exit()

	rt.mu.Lock()
	w, ok := rt.reflectors[native.ID()]
	rt.mu.Unlock()
	if ok {
		if r, ok := w.Upgrade(s); ok {
			return r.Borrow().Temp()
		}
	}

	class := fmt.Sprintf("%T", native.Get())
	r := gc.New(rt.heap, &Object{class: class}).Root(s)
	r.Borrow().Get().native.Set(native)

	id := native.ID()
	w = gc.NewWeak(r.Borrow())
	w.SetFinalizer(func(gc.ID) {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.reflectors[id] == w {
			delete(rt.reflectors, id)
		}
	})
	rt.mu.Lock()
	rt.reflectors[id] = w
	rt.mu.Unlock()

	return r.Borrow().Temp()
}

// Reflectors returns the number of cached reflectors.
func (rt *Runtime) Reflectors() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.reflectors)
}

// Invoke calls a function object. It satisfies dom.Invoker.
func (rt *Runtime) Invoke(fn, this gc.Ref[gc.Object], args ...gc.Ref[gc.Object]) error {
	f, ok := gc.Downcast[*Object](fn)
	if !ok || f.Get().call == nil {
		return fmt.Errorf("invoke %s: %w", fn.ID(), ErrNotCallable)
	}

	if err := f.Get().call(rt, this, args); err != nil {
		name, _ := Value(f, "name")
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
