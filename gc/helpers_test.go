package gc

import (
	"errors"
	"testing"
)

// testNode is a hand-traced object with every shape of edge container.
type testNode struct {
	Header
	name string
	next Edge[*testNode]
	kids []Edge[*testNode]
	meta map[string]Edge[*testNode]
}

func (n *testNode) Trace(tr Tracer) {
	n.next.Trace(tr)
	for i := range n.kids {
		n.kids[i].Trace(tr)
	}
	for _, e := range n.meta {
		e.Trace(tr)
	}
}

// testElement embeds testNode by value, so both share one Header.
type testElement struct {
	testNode
	owner Edge[*testNode]
}

func (e *testElement) Trace(tr Tracer) {
	e.testNode.Trace(tr)
	e.owner.Trace(tr)
}

// brokenNode forgets its second edge.
type brokenNode struct {
	Header
	a Edge[*testNode]
	b Edge[*testNode]
}

func (n *brokenNode) Trace(tr Tracer) {
	n.a.Trace(tr)
}

func newNode(t *testing.T, h *Heap, s *Scope, name string) *Root[*testNode] {
	t.Helper()
	return New(h, &testNode{name: name}).Root(s)
}

// expectInvariant runs fn and fails unless it panics with an InvariantError
// wrapping target.
func expectInvariant(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v, got none", target)
		}
		ie, ok := r.(*InvariantError)
		if !ok {
			t.Fatalf("panic value = %T (%v), want *InvariantError", r, r)
		}
		if !errors.Is(ie, target) {
			t.Fatalf("panic = %v, want %v", ie, target)
		}
	}()
	fn()
}
