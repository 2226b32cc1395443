// Package dom is a small document object model whose objects are owned by
// the gc heap and shared with a script runtime.
//
// Types hold their references to each other as gc.Edge fields and get their
// Trace methods from tracegen (see zz_generated.trace.go). Operations are
// package functions that take gc.Ref arguments and hand objects back as
// gc.Temp values, so the caller decides whether to root or store them:
//
//	s := h.Enter()
//	defer s.Exit()
//	win := dom.Open(h, "about:blank").Root(s)
//	doc, _ := dom.DocumentOf(win.Borrow())
//	body, err := dom.CreateElement(doc.Root(s).Borrow(), "body")
package dom

//go:generate go run github.com/chazu/rooted/cmd/rooted gen .
