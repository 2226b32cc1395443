package gc

import "strconv"

// ID identifies a collector-owned object. IDs are never reused and 0 means
// "no object".
type ID uint64

func (id ID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// Object is a value whose storage and lifetime belong to the collector.
// Implementations embed Header, directly or through an embedded base type,
// and implement Trace (usually generated by tracegen).
type Object interface {
	Traceable
	GCHeader() *Header
}

type objState uint8

const (
	stateDetached objState = iota
	stateLive
	stateCollected
)

// Header carries the collector's bookkeeping for one object. The zero value
// is a detached object; New attaches it to a heap.
type Header struct {
	id    ID
	heap  *Heap
	self  Object
	state objState
}

// GCHeader returns h. It is promoted onto every type embedding Header.
func (h *Header) GCHeader() *Header {
	return h
}

// IDOf returns obj's identity, or 0 if obj was never allocated.
func IDOf(obj Object) ID {
	return obj.GCHeader().id
}

// IsCollected reports whether the collector has reclaimed obj.
func IsCollected(obj Object) bool {
	return obj.GCHeader().state == stateCollected
}

// noCopy makes go vet's copylocks check flag value copies of handle types.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
