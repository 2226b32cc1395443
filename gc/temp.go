package gc

type tempState struct {
	hdr      *Header
	token    *Token
	consumed bool
}

// Temp is a transitional handle for an object an operation has just created
// or looked up. The object stays protected until the caller decides where it
// goes: Root it, Store it into a traced field, or Discard it. A Temp offers
// no access to the object; it must be converted first, exactly once.
type Temp[T Object] struct {
	obj T
	st  *tempState
}

func newTemp[T Object](obj T, hdr *Header) Temp[T] {
	return newTempWithToken(obj, hdr, hdr.heap.registry.Register(hdr.id))
}

func newTempWithToken[T Object](obj T, hdr *Header, token *Token) Temp[T] {
	hdr.heap.pending.Add(1)
	return Temp[T]{obj: obj, st: &tempState{hdr: hdr, token: token}}
}

func (t Temp[T]) consume(op string) {
	if t.st == nil {
		fatal(op, 0, ErrNilHandle)
	}
	if t.st.consumed {
		fatal(op, t.st.hdr.id, ErrConsumed)
	}
	t.st.consumed = true
}

func (t Temp[T]) finish() {
	t.st.token.Release()
	t.st.hdr.heap.pending.Add(-1)
}

// Root converts t into a Root owned by scope s.
func (t Temp[T]) Root(s *Scope) *Root[T] {
	t.consume("Temp.Root")
	r := newRoot(s, t.obj, t.st.hdr)
	t.finish()
	return r
}

// Store writes t's object into a traced field.
func (t Temp[T]) Store(dst *Edge[T]) {
	t.consume("Temp.Store")
	dst.obj = t.obj
	dst.hdr = t.st.hdr
	t.finish()
}

// Discard drops the protection without keeping the object. Discarding a nil
// or already converted Temp is a no-op, so it can be deferred.
func (t Temp[T]) Discard() {
	if t.st == nil || t.st.consumed {
		return
	}
	t.st.consumed = true
	t.finish()
}

// IsNil reports whether t holds no object.
func (t Temp[T]) IsNil() bool {
	return t.st == nil
}

// ID returns the object's identity, or 0 for a nil Temp.
func (t Temp[T]) ID() ID {
	if t.st == nil {
		return 0
	}
	return t.st.hdr.id
}
