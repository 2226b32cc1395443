package gc

import "sync"

// ---------------------------------------------------------------------------
// Weak: a handle that does not keep its target alive
// ---------------------------------------------------------------------------

// Weak refers to an object without protecting it. The collector clears it
// when the target is swept and then runs the optional finalizer. Weak
// handles are for caches keyed by object identity, such as the script
// runtime's reflector table; they are not traced.
type Weak[T Object] struct {
	mu        sync.RWMutex
	obj       T
	hdr       *Header
	finalizer func(ID)
	table     *weakTable
}

// NewWeak creates a weak handle to r's object and registers it with the
// object's heap.
func NewWeak[T Object](r Ref[T]) *Weak[T] {
	r.check("NewWeak")
	w := &Weak[T]{obj: r.obj, hdr: r.hdr, table: r.hdr.heap.weak}
	w.table.register(w)
	return w
}

// Upgrade roots the target in scope s, or reports false once it has been
// collected.
func (w *Weak[T]) Upgrade(s *Scope) (*Root[T], bool) {
	w.mu.RLock()
	obj, hdr := w.obj, w.hdr
	w.mu.RUnlock()
	if hdr == nil {
		return nil, false
	}
	return newRoot(s, obj, hdr), true
}

// IsAlive reports whether the target has not been collected.
func (w *Weak[T]) IsAlive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hdr != nil
}

// ID returns the target's identity. It stays valid after the target is
// collected, for use as a map key.
func (w *Weak[T]) ID() ID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.hdr == nil {
		return 0
	}
	return w.hdr.id
}

// SetFinalizer sets a callback run after the target is collected. It
// receives the collected identity.
func (w *Weak[T]) SetFinalizer(fn func(ID)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalizer = fn
}

// Unregister stops tracking w. A cleared handle is unregistered already.
func (w *Weak[T]) Unregister() {
	w.table.unregister(w)
}

func (w *Weak[T]) target() ID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.hdr == nil {
		return 0
	}
	return w.hdr.id
}

func (w *Weak[T]) clear() func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.hdr.id
	var zero T
	w.obj = zero
	w.hdr = nil
	if fn := w.finalizer; fn != nil {
		return func() { fn(id) }
	}
	return nil
}

type weakRef interface {
	target() ID
	clear() func()
}

// weakTable tracks every live weak handle of a heap.
type weakTable struct {
	mu   sync.Mutex
	refs map[weakRef]struct{}
}

func newWeakTable() *weakTable {
	return &weakTable{refs: make(map[weakRef]struct{})}
}

func (t *weakTable) register(w weakRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[w] = struct{}{}
}

func (t *weakTable) unregister(w weakRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.refs, w)
}

func (t *weakTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.refs)
}

// process clears handles whose target is not in marked and returns how many
// were cleared and the finalizers to run once the heap lock is dropped.
func (t *weakTable) process(marked map[ID]struct{}) (int, []func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleared := 0
	var finalizers []func()
	for w := range t.refs {
		id := w.target()
		if id == 0 {
			delete(t.refs, w)
			continue
		}
		if _, ok := marked[id]; ok {
			continue
		}
		if fin := w.clear(); fin != nil {
			finalizers = append(finalizers, fin)
		}
		delete(t.refs, w)
		cleared++
	}
	return cleared, finalizers
}

// WeakCount returns the number of weak handles the heap is tracking.
func (h *Heap) WeakCount() int {
	return h.weak.len()
}
