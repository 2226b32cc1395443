package dom

import (
	"fmt"
	"strings"

	"github.com/chazu/rooted/gc"
)

// CreateElement allocates an element owned by doc. HTML documents
// lower-case the name.
func CreateElement(doc gc.Ref[*Document], localName string) (gc.Temp[*Element], error) {
	if !validName(localName) {
		return gc.Temp[*Element]{}, fmt.Errorf("create element %q: %w", localName, ErrInvalidCharacter)
	}
	if doc.Get().isHTMLDocument {
		localName = strings.ToLower(localName)
	}

	h := doc.Heap()
	s := h.Enter()
	defer s.Exit()

	el := gc.New(h, &Element{
		Node:      Node{kind: ElementNode, name: strings.ToUpper(localName)},
		localName: localName,
	}).Root(s)
	el.Borrow().Get().ownerDocument.Set(doc)
	return el.Borrow().Temp(), nil
}

// CreateTextNode allocates a text node owned by doc.
func CreateTextNode(doc gc.Ref[*Document], data string) gc.Temp[*Text] {
	h := doc.Heap()
	s := h.Enter()
	defer s.Exit()

	t := gc.New(h, &Text{
		Node: Node{kind: TextNode, name: "#text"},
		data: data,
	}).Root(s)
	t.Borrow().Get().ownerDocument.Set(doc)
	return t.Borrow().Temp()
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

// Parent returns n's parent node.
func Parent(n gc.Ref[*Node]) (gc.Temp[*Node], bool) {
	return n.Get().parent.Temp()
}

// FirstChild returns n's first child.
func FirstChild(n gc.Ref[*Node]) (gc.Temp[*Node], bool) {
	return n.Get().firstChild.Temp()
}

// LastChild returns n's last child.
func LastChild(n gc.Ref[*Node]) (gc.Temp[*Node], bool) {
	return n.Get().lastChild.Temp()
}

// NextSibling returns the node after n under the same parent.
func NextSibling(n gc.Ref[*Node]) (gc.Temp[*Node], bool) {
	return n.Get().nextSibling.Temp()
}

// PreviousSibling returns the node before n under the same parent.
func PreviousSibling(n gc.Ref[*Node]) (gc.Temp[*Node], bool) {
	return n.Get().prevSibling.Temp()
}

// Children returns n's children in order.
func Children(n gc.Ref[*Node]) []gc.Temp[*Node] {
	s := n.Heap().Enter()
	defer s.Exit()

	var out []gc.Temp[*Node]
	for c, ok := n.Get().firstChild.Root(s); ok; c, ok = c.Borrow().Get().nextSibling.Root(s) {
		out = append(out, c.Borrow().Temp())
	}
	return out
}

// Contains reports whether other is n or one of its descendants.
func Contains(n, other gc.Ref[*Node]) bool {
	if n.Same(other) {
		return true
	}
	s := n.Heap().Enter()
	defer s.Exit()

	for p, ok := other.Get().parent.Root(s); ok; p, ok = p.Borrow().Get().parent.Root(s) {
		if p.Borrow().Same(n) {
			return true
		}
	}
	return false
}

// walk visits n and its descendants in tree order until fn returns false.
// Every node is rooted in s while fn runs.
func walk(s *gc.Scope, n gc.Ref[*Node], fn func(gc.Ref[*Node]) bool) bool {
	if !fn(n) {
		return false
	}
	for c, ok := n.Get().firstChild.Root(s); ok; c, ok = c.Borrow().Get().nextSibling.Root(s) {
		if !walk(s, c.Borrow(), fn) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

// AppendChild moves child to the end of parent's children, detaching it
// from its current parent first.
func AppendChild(parent, child gc.Ref[*Node]) error {
	p, c := parent.Get(), child.Get()
	if c.kind == DocumentNode || p.kind == TextNode {
		return fmt.Errorf("append %s to %s: %w", c.kind, p.kind, ErrHierarchy)
	}
	if Contains(child, parent) {
		return fmt.Errorf("append %s: node is an ancestor of the new parent: %w", c.name, ErrHierarchy)
	}

	s := parent.Heap().Enter()
	defer s.Exit()

	if old, ok := c.parent.Root(s); ok {
		detach(s, old.Borrow(), child)
	}

	if last, ok := p.lastChild.Root(s); ok {
		last.Borrow().Get().nextSibling.Set(child)
		c.prevSibling.Set(last.Borrow())
	} else {
		p.firstChild.Set(child)
	}
	p.lastChild.Set(child)
	c.parent.Set(parent)

	adopt(s, parent, child)
	return nil
}

// RemoveChild detaches child from parent.
func RemoveChild(parent, child gc.Ref[*Node]) error {
	if !child.Get().parent.Same(parent) {
		return fmt.Errorf("remove %s: %w", child.Get().name, ErrNotFound)
	}
	s := parent.Heap().Enter()
	defer s.Exit()

	detach(s, parent, child)
	return nil
}

func detach(s *gc.Scope, parent, child gc.Ref[*Node]) {
	p, c := parent.Get(), child.Get()
	prev, hasPrev := c.prevSibling.Root(s)
	next, hasNext := c.nextSibling.Root(s)

	switch {
	case hasPrev && hasNext:
		prev.Borrow().Get().nextSibling.Set(next.Borrow())
		next.Borrow().Get().prevSibling.Set(prev.Borrow())
	case hasPrev:
		prev.Borrow().Get().nextSibling.Clear()
		p.lastChild.Set(prev.Borrow())
	case hasNext:
		next.Borrow().Get().prevSibling.Clear()
		p.firstChild.Set(next.Borrow())
	default:
		p.firstChild.Clear()
		p.lastChild.Clear()
	}
	c.parent.Clear()
	c.prevSibling.Clear()
	c.nextSibling.Clear()
}

// adopt gives child's subtree the owner document of parent.
func adopt(s *gc.Scope, parent, child gc.Ref[*Node]) {
	var owner gc.Ref[*Document]
	if doc, ok := gc.Downcast[*Document](parent); ok {
		owner = doc
	} else if r, ok := parent.Get().ownerDocument.Root(s); ok {
		owner = r.Borrow()
	} else {
		return
	}
	if child.Get().ownerDocument.Same(owner) {
		return
	}
	walk(s, child, func(n gc.Ref[*Node]) bool {
		n.Get().ownerDocument.Set(owner)
		return true
	})
}

// ---------------------------------------------------------------------------
// Content and queries
// ---------------------------------------------------------------------------

// TextContent returns the concatenated text of n's descendants.
func TextContent(n gc.Ref[*Node]) string {
	s := n.Heap().Enter()
	defer s.Exit()

	var b strings.Builder
	walk(s, n, func(c gc.Ref[*Node]) bool {
		if t, ok := gc.Downcast[*Text](c); ok {
			b.WriteString(t.Get().data)
		}
		return true
	})
	return b.String()
}

// SetAttribute sets or replaces an attribute.
func SetAttribute(el gc.Ref[*Element], name, value string) error {
	if !validName(name) {
		return fmt.Errorf("set attribute %q: %w", name, ErrInvalidCharacter)
	}
	e := el.Get()
	name = strings.ToLower(name)
	for i := range e.attrs {
		if e.attrs[i].Name == name {
			e.attrs[i].Value = value
			return nil
		}
	}
	e.attrs = append(e.attrs, Attr{Name: name, Value: value})
	return nil
}

// GetAttribute returns an attribute's value.
func GetAttribute(el gc.Ref[*Element], name string) (string, bool) {
	return el.Get().attr(name)
}

// RemoveAttribute deletes an attribute and reports whether it existed.
func RemoveAttribute(el gc.Ref[*Element], name string) bool {
	e := el.Get()
	name = strings.ToLower(name)
	for i := range e.attrs {
		if e.attrs[i].Name == name {
			e.attrs = append(e.attrs[:i], e.attrs[i+1:]...)
			return true
		}
	}
	return false
}

// GetElementByID returns the first element in tree order whose id
// attribute equals id.
func GetElementByID(doc gc.Ref[*Document], id string) (gc.Temp[*Element], bool) {
	s := doc.Heap().Enter()
	defer s.Exit()

	var found gc.Temp[*Element]
	walk(s, NodeOf(doc), func(n gc.Ref[*Node]) bool {
		el, ok := gc.Downcast[*Element](n)
		if !ok {
			return true
		}
		if v, ok := el.Get().attr("id"); ok && v == id {
			found = el.Temp()
			return false
		}
		return true
	})
	return found, !found.IsNil()
}

// GetElementsByTagName returns every element under root with the given
// local name, or every element for "*".
func GetElementsByTagName(root gc.Ref[*Node], name string) []gc.Temp[*Element] {
	s := root.Heap().Enter()
	defer s.Exit()

	name = strings.ToLower(name)
	var out []gc.Temp[*Element]
	walk(s, root, func(n gc.Ref[*Node]) bool {
		if n.Same(root) {
			return true
		}
		if el, ok := gc.Downcast[*Element](n); ok {
			if name == "*" || strings.ToLower(el.Get().localName) == name {
				out = append(out, el.Temp())
			}
		}
		return true
	})
	return out
}

// DocumentElement returns the document's first element child.
func DocumentElement(doc gc.Ref[*Document]) (gc.Temp[*Element], bool) {
	s := doc.Heap().Enter()
	defer s.Exit()

	for c, ok := doc.Get().firstChild.Root(s); ok; c, ok = c.Borrow().Get().nextSibling.Root(s) {
		if el, ok := gc.Downcast[*Element](c.Borrow()); ok {
			return el.Temp(), true
		}
	}
	return gc.Temp[*Element]{}, false
}

// Title returns the text of the document's first title element.
func Title(doc gc.Ref[*Document]) string {
	titles := GetElementsByTagName(NodeOf(doc), "title")
	if len(titles) == 0 {
		return ""
	}
	s := doc.Heap().Enter()
	defer s.Exit()
	defer func() {
		for _, t := range titles[1:] {
			t.Discard()
		}
	}()

	first := titles[0].Root(s)
	return strings.TrimSpace(TextContent(NodeOf(first.Borrow())))
}
