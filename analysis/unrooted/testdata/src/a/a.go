package a

import (
	"slices"

	"github.com/chazu/rooted/gc"
)

type Node struct {
	gc.Header
	next gc.Edge[*Node]
	kids []gc.Edge[*Node]
	meta map[string]gc.Edge[*Node]
	pair struct {
		left  gc.Edge[*Node]
		right [2]gc.Edge[*Node]
	}
}

func (n *Node) Trace(tr gc.Tracer) {}

type Untraced struct {
	gc.Header
	next gc.Edge[*Node] // want `gc.Edge outside a traced field`
}

// Trace is promoted from Node and does not report extra.
type Derived struct {
	Node
	extra gc.Edge[*Node] // want `gc.Edge outside a traced field`
}

func param(e gc.Edge[*Node]) {} // want `gc.Edge outside a traced field`

func result(n *Node) gc.Edge[*Node] { // want `gc.Edge outside a traced field`
	return n.next
}

func local(n *Node) {
	e := n.next // want `variable e holds an unrooted gc.Edge`
	_ = e
	var f gc.Edge[*Node] // want `gc.Edge outside a traced field`
	_ = f
	for _, k := range n.kids { // want `variable k holds an unrooted gc.Edge`
		_ = k
	}
}

func literal() any {
	return []gc.Edge[*Node]{} // want `gc.Edge outside a traced field`
}

func containers(n *Node) {
	kids := slices.Clone(n.kids) // want `variable kids holds untraced gc.Edge values in \[\]gc.Edge\[\*Node\]`
	_ = kids
	alias := n.kids // want `variable alias holds untraced gc.Edge values`
	_ = alias
	grown := append(n.kids, n.next) // want `variable grown holds untraced gc.Edge values`
	_ = grown
	meta := n.meta // want `variable meta holds untraced gc.Edge values in map\[string\]gc.Edge\[\*Node\]`
	_ = meta
	count := len(n.kids)
	_ = count
}

func value(n *Node) {
	snapshot := *n
	_ = snapshot
}

func allowed(n *Node) {
	e := n.next //gc:allow-unrooted
	_ = e
	//gc:allow-unrooted
	g := n.meta["x"]
	_ = g
}

//gc:allow-unrooted
func allowedDecl(n *Node) gc.Edge[*Node] {
	return n.next
}

func rooted(h *gc.Heap, n *Node) {
	s := h.Enter()
	defer s.Exit()
	if r, ok := n.next.Root(s); ok {
		r.Release()
	}
}
