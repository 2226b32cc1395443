package dom

import "github.com/chazu/rooted/gc"

// Document is the root of a tree. It embeds Node, so Node's edges are part
// of its trace, and holds an edge to the Window presenting it.
//
//gc:traceable
type Document struct {
	Node
	window         gc.Edge[*Window]
	isHTMLDocument bool
	url            string
}

// IsHTML reports whether doc is an HTML document. Element names are
// lower-cased on creation in HTML documents.
func IsHTML(doc gc.Ref[*Document]) bool {
	return doc.Get().isHTMLDocument
}

// URL returns the document's address.
func URL(doc gc.Ref[*Document]) string {
	return doc.Get().url
}

// NewDocument allocates an empty document.
func NewDocument(h *gc.Heap, url string, html bool) gc.Temp[*Document] {
	return gc.New(h, &Document{
		Node:           Node{kind: DocumentNode, name: "#document"},
		isHTMLDocument: html,
		url:            url,
	})
}

// Window is the global object presenting one document.
//
//gc:traceable
type Window struct {
	EventTarget
	document  gc.Edge[*Document]
	timers    []timer
	nextTimer int
}

// NewWindow allocates a window presenting doc and points doc back at it.
func NewWindow(doc gc.Ref[*Document]) gc.Temp[*Window] {
	h := doc.Heap()
	s := h.Enter()
	defer s.Exit()

	w := gc.New(h, &Window{}).Root(s)
	w.Borrow().Get().document.Set(doc)
	doc.Get().window.Set(w.Borrow())
	log.Debugf("window %s presents document %s", w.ID(), doc.ID())
	return w.Borrow().Temp()
}

// Open creates an HTML document at url and a window presenting it.
func Open(h *gc.Heap, url string) gc.Temp[*Window] {
	s := h.Enter()
	defer s.Exit()

	doc := NewDocument(h, url, true).Root(s)
	return NewWindow(doc.Borrow())
}

// DocumentOf returns the document w presents.
func DocumentOf(w gc.Ref[*Window]) (gc.Temp[*Document], bool) {
	return w.Get().document.Temp()
}

// WindowOf returns the window presenting doc, if any.
func WindowOf(doc gc.Ref[*Document]) (gc.Temp[*Window], bool) {
	return doc.Get().window.Temp()
}

// OwnerDocument returns the document n belongs to. A document has none.
func OwnerDocument(n gc.Ref[*Node]) (gc.Temp[*Document], bool) {
	return n.Get().ownerDocument.Temp()
}
