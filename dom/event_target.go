package dom

import "github.com/chazu/rooted/gc"

//gc:traceable
type listener struct {
	typ      string
	once     bool
	callback gc.Edge[gc.Object]
}

// EventTarget is the base of every object that can receive events. It owns
// the object's gc.Header, so Node, Element, Document and Window all share
// the identity of their embedded EventTarget.
//
//gc:traceable
type EventTarget struct {
	gc.Header
	listeners []listener
}

func (t *EventTarget) asTarget() *EventTarget {
	return t
}

// ListenerCount returns the number of listeners registered on target for
// typ, or for every type if typ is empty.
func ListenerCount(target gc.Ref[*EventTarget], typ string) int {
	t := target.Get()
	n := 0
	for i := range t.listeners {
		if typ == "" || t.listeners[i].typ == typ {
			n++
		}
	}
	return n
}

type targetLike interface {
	gc.Object
	asTarget() *EventTarget
}

// TargetOf upcasts any event target to its EventTarget base.
func TargetOf[T targetLike](r gc.Ref[T]) gc.Ref[*EventTarget] {
	return gc.Upcast(r, func(t T) *EventTarget { return t.asTarget() })
}
