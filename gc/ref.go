package gc

// Ref is a borrowed reference: a cheap, copyable handle to an object some
// live Root protects. The operations of collector-owned types take Refs;
// inside them, Get reaches the object's fields.
//
// A Ref must not outlive its Root. The refescape analyzer rejects the common
// ways of breaking that rule at build time; anything it misses is caught by
// Get, which panics once the Root has been released.
type Ref[T Object] struct {
	obj  T
	hdr  *Header
	cell *cell
}

func (r Ref[T]) check(op string) {
	if r.cell == nil {
		fatal(op, 0, ErrNilHandle)
	}
	if r.cell.released {
		fatal(op, r.hdr.id, ErrReleased)
	}
}

// Get returns the protected object. The pointer is subject to the same
// lifetime as r: refescape reports it when it is returned past its root's
// scope or stored beyond the call.
func (r Ref[T]) Get() T {
	r.check("Ref.Get")
	return r.obj
}

// ID returns the object's identity, or 0 for the zero Ref.
func (r Ref[T]) ID() ID {
	if r.hdr == nil {
		return 0
	}
	return r.hdr.id
}

// Heap returns the heap r's object belongs to.
func (r Ref[T]) Heap() *Heap {
	r.check("Ref.Heap")
	return r.hdr.heap
}

// Valid reports whether r may still be used.
func (r Ref[T]) Valid() bool {
	return r.cell != nil && !r.cell.released
}

// Same reports whether r and o refer to the same object.
func (r Ref[T]) Same(o Ref[T]) bool {
	return r.hdr != nil && r.hdr == o.hdr
}

// Temp returns a transitional handle for r's object, used to hand an
// already protected object back to a caller.
func (r Ref[T]) Temp() Temp[T] {
	r.check("Ref.Temp")
	return newTemp(r.obj, r.hdr)
}

// Upcast converts r to a Ref of an embedded base type, e.g. from *Element to
// the *Node it embeds. f must return a value sharing r's Header.
func Upcast[T, U Object](r Ref[T], f func(T) U) Ref[U] {
	r.check("Upcast")
	u := f(r.obj)
	if u.GCHeader() != r.hdr {
		fatal("Upcast", r.hdr.id, ErrIdentity)
	}
	return Ref[U]{obj: u, hdr: r.hdr, cell: r.cell}
}

// Downcast converts r to a Ref of the object's concrete type, or of any type
// r's value already is. It reports false if the object is not a U.
func Downcast[U, T Object](r Ref[T]) (Ref[U], bool) {
	r.check("Downcast")
	if u, ok := r.hdr.self.(U); ok {
		return Ref[U]{obj: u, hdr: r.hdr, cell: r.cell}, true
	}
	if u, ok := any(r.obj).(U); ok {
		return Ref[U]{obj: u, hdr: r.hdr, cell: r.cell}, true
	}
	return Ref[U]{}, false
}

// Erase converts r to a Ref of the Object interface.
func Erase[T Object](r Ref[T]) Ref[Object] {
	r.check("Erase")
	return Ref[Object]{obj: r.obj, hdr: r.hdr, cell: r.cell}
}

// Identical reports whether a and b refer to the same object, whatever
// their static types.
func Identical[T, U Object](a Ref[T], b Ref[U]) bool {
	return a.hdr != nil && a.hdr == b.hdr
}
