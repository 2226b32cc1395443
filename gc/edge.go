package gc

// Edge is an unrooted reference from one collector-owned object to another.
// It carries no protection and exposes no way to reach the target: the only
// legal home for an Edge is a field of a traced object, and the only way to
// use one is to root it first.
//
// Outside this package the zero value is the only Edge that can be
// constructed; Set requires a Ref, so an Edge never points at an object
// native code had not protected at the time it was stored.
type Edge[T Object] struct {
	obj T
	hdr *Header
}

func (e Edge[T]) edgeID() ID {
	if e.hdr == nil {
		return 0
	}
	return e.hdr.id
}

// IsNil reports whether the edge points nowhere.
func (e Edge[T]) IsNil() bool {
	return e.hdr == nil
}

// ID returns the target's identity, or 0 for a nil edge.
func (e Edge[T]) ID() ID {
	return e.edgeID()
}

// Same reports whether e points at r's object.
func (e Edge[T]) Same(r Ref[T]) bool {
	return e.hdr != nil && e.hdr == r.hdr
}

// Trace reports the target. It does not recurse into it.
func (e Edge[T]) Trace(tr Tracer) {
	if e.hdr != nil {
		tr.Visit(e.hdr.id)
	}
}

// Root protects the target for the lifetime of scope s. It returns false
// for a nil edge. Rooting an edge whose target was collected means a Trace
// method missed this edge; that is fatal.
func (e Edge[T]) Root(s *Scope) (*Root[T], bool) {
	if e.hdr == nil {
		return nil, false
	}
	e.hdr.mustBeLive("Edge.Root")
	return newRoot(s, e.obj, e.hdr), true
}

// Temp protects the target with a transitional handle, for operations that
// hand a field's target back to their caller. It returns false for a nil
// edge.
func (e Edge[T]) Temp() (Temp[T], bool) {
	if e.hdr == nil {
		return Temp[T]{}, false
	}
	e.hdr.mustBeLive("Edge.Temp")
	return newTemp(e.obj, e.hdr), true
}

// Set points e at r's object.
func (e *Edge[T]) Set(r Ref[T]) {
	r.check("Edge.Set")
	e.obj = r.obj
	e.hdr = r.hdr
}

// Clear makes e a nil edge.
func (e *Edge[T]) Clear() {
	var zero T
	e.obj = zero
	e.hdr = nil
}

func (h *Header) mustBeLive(op string) {
	switch h.state {
	case stateLive:
	case stateCollected:
		fatal(op, h.id, ErrCollected)
	default:
		fatal(op, 0, ErrNilHandle)
	}
}
