package dom

import (
	"slices"
	"strings"

	"github.com/chazu/rooted/gc"
)

// NodeType distinguishes the kinds of tree node.
type NodeType uint8

const (
	ElementNode  NodeType = 1
	TextNode     NodeType = 3
	DocumentNode NodeType = 9
)

func (k NodeType) String() string {
	switch k {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}

// Node is a member of a document tree.
//
//gc:traceable
type Node struct {
	EventTarget
	kind NodeType
	name string

	ownerDocument gc.Edge[*Document]
	parent        gc.Edge[*Node]
	firstChild    gc.Edge[*Node]
	lastChild     gc.Edge[*Node]
	prevSibling   gc.Edge[*Node]
	nextSibling   gc.Edge[*Node]
}

func (n *Node) asNode() *Node {
	return n
}

// Kind returns the node type.
func Kind(n gc.Ref[*Node]) NodeType {
	return n.Get().kind
}

// NodeName returns the node name: the upper-cased tag name for HTML
// elements, "#text" or "#document".
func NodeName(n gc.Ref[*Node]) string {
	return n.Get().name
}

// HasChildNodes reports whether n has at least one child.
func HasChildNodes(n gc.Ref[*Node]) bool {
	return !n.Get().firstChild.IsNil()
}

// IsConnected reports whether n has a parent or is a document.
func IsConnected(n gc.Ref[*Node]) bool {
	node := n.Get()
	return node.kind == DocumentNode || !node.parent.IsNil()
}

type nodeLike interface {
	gc.Object
	asNode() *Node
}

// NodeOf upcasts any node type to its Node base.
func NodeOf[T nodeLike](r gc.Ref[T]) gc.Ref[*Node] {
	return gc.Upcast(r, func(t T) *Node { return t.asNode() })
}

// Text is a character data node.
//
//gc:traceable
type Text struct {
	Node
	data string
}

// Data returns the node's text.
func Data(t gc.Ref[*Text]) string {
	return t.Get().data
}

// SetData replaces the node's text.
func SetData(t gc.Ref[*Text], data string) {
	t.Get().data = data
}

// Attr is one element attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is a tagged node with attributes.
//
//gc:traceable
type Element struct {
	Node
	localName string
	attrs     []Attr
}

// LocalName returns the element's tag name as created.
func LocalName(el gc.Ref[*Element]) string {
	return el.Get().localName
}

// Attributes returns a copy of the element's attributes in insertion order.
func Attributes(el gc.Ref[*Element]) []Attr {
	return slices.Clone(el.Get().attrs)
}

func (e *Element) attr(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range e.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
