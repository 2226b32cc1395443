package gc

// cell is the liveness record a Root shares with every Ref borrowed from it.
type cell struct {
	released bool
}

// Root protects one object from collection until it is released, either
// explicitly or when its Scope exits. A Root is handled by pointer and must
// not be copied; moving the pointer moves ownership.
type Root[T Object] struct {
	noCopy noCopy

	obj   T
	hdr   *Header
	scope *Scope
	token *Token
	cell  *cell
}

func newRoot[T Object](s *Scope, obj T, hdr *Header) *Root[T] {
	if s == nil {
		fatal("Root", hdr.id, ErrNilHandle)
	}
	if s.exited {
		fatal("Root", hdr.id, ErrScopeClosed)
	}
	if hdr.heap != s.heap {
		fatal("Root", hdr.id, ErrForeignHeap)
	}
	r := &Root[T]{
		obj:   obj,
		hdr:   hdr,
		scope: s,
		token: s.heap.registry.Register(hdr.id),
		cell:  &cell{},
	}
	s.track(r)
	return r
}

// Borrow derives a Ref that is valid until r is released.
func (r *Root[T]) Borrow() Ref[T] {
	if r.cell.released {
		fatal("Root.Borrow", r.hdr.id, ErrReleased)
	}
	return Ref[T]{obj: r.obj, hdr: r.hdr, cell: r.cell}
}

// Release drops the protection. Every Ref borrowed from r becomes invalid.
// Releasing twice is a no-op.
func (r *Root[T]) Release() {
	if r.cell.released {
		return
	}
	r.cell.released = true
	r.token.Release()
}

// Unroot stores the object into a traced field and releases r, handing
// protection over to whatever keeps the field's owner alive.
func (r *Root[T]) Unroot(dst *Edge[T]) {
	dst.Set(r.Borrow())
	r.Release()
}

// Released reports whether r no longer protects its object.
func (r *Root[T]) Released() bool {
	return r.cell.released
}

// ID returns the protected object's identity.
func (r *Root[T]) ID() ID {
	return r.hdr.id
}
