package gc

type releaser interface {
	Release()
}

// Scope owns the Roots created in it and releases them on Exit. Scopes nest
// strictly: only the innermost open scope may exit, so a collection can
// never see roots from two interleaved call chains.
type Scope struct {
	heap   *Heap
	parent *Scope
	depth  int
	roots  []releaser
	exited bool
}

// Enter opens a scope nested inside the current innermost scope.
func (h *Heap) Enter() *Scope {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &Scope{heap: h, parent: h.top}
	if h.top != nil {
		s.depth = h.top.depth + 1
	}
	h.top = s
	return s
}

// Exit releases every Root still held by s, newest first. Exiting a scope
// twice is a no-op; exiting a scope that is not innermost is fatal.
func (s *Scope) Exit() {
	if s.exited {
		return
	}

	h := s.heap
	h.mu.Lock()
	if h.top != s {
		h.mu.Unlock()
		fatal("Scope.Exit", 0, ErrScopeOrder)
	}
	h.top = s.parent
	h.mu.Unlock()

	for i := len(s.roots) - 1; i >= 0; i-- {
		s.roots[i].Release()
	}
	s.roots = nil
	s.exited = true
}

// Depth returns the nesting depth; the outermost scope has depth 0.
func (s *Scope) Depth() int {
	return s.depth
}

// Heap returns the heap s roots objects in.
func (s *Scope) Heap() *Heap {
	return s.heap
}

// Len returns the number of roots s owns, released or not.
func (s *Scope) Len() int {
	return len(s.roots)
}

func (s *Scope) track(r releaser) {
	s.roots = append(s.roots, r)
}

// RootID roots the live object with identity id. It is how code holding a
// bare identity, such as a script engine's handle table, re-enters the
// handle discipline. It reports false if no such object is live.
func (s *Scope) RootID(id ID) (*Root[Object], bool) {
	obj, ok := s.heap.Lookup(id)
	if !ok {
		return nil, false
	}
	return newRoot(s, obj, obj.GCHeader()), true
}
