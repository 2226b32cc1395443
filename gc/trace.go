package gc

// Tracer receives the identity of every object an object points to.
type Tracer interface {
	Visit(id ID)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(id ID)

func (f TracerFunc) Visit(id ID) {
	f(id)
}

// Traceable is the trace contract: Trace must visit every Edge reachable
// from the receiver by value, and nothing else. Edges are reported, never
// followed; the collector recurses across objects itself.
//
// Omitting an edge is a memory-safety bug, not a leak: the collector is the
// sole owner and will reclaim an object native code still points to.
type Traceable interface {
	Trace(tr Tracer)
}

// EnumerateEdges returns the identities obj reports through Trace, in the
// order they were visited.
func EnumerateEdges(obj Traceable) []ID {
	var ids []ID
	obj.Trace(TracerFunc(func(id ID) {
		ids = append(ids, id)
	}))
	return ids
}
