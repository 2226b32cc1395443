package b

import "github.com/chazu/rooted/gc"

type Node struct {
	gc.Header
	next gc.Edge[*Node]
}

func (n *Node) Trace(tr gc.Tracer) {}

type pair [2]Node

func value(n *Node) {
	snapshot := *n // want `variable snapshot holds a gc.Edge by value inside Node`
	_ = snapshot
	var p pair // want `variable p holds a gc.Edge by value inside pair`
	_ = p
	nodes := []Node{*n} // want `variable nodes holds a gc.Edge by value inside \[\]Node`
	_ = nodes
	byName := map[string]Node{} // want `variable byName holds a gc.Edge by value inside map\[string\]Node`
	_ = byName
	ptr := n
	_ = ptr
	ptrs := []*Node{n}
	_ = ptrs
}

func cmp(a, b Node) bool { // want `variable [ab] holds a gc.Edge by value inside Node`
	return a.next == b.next
}
