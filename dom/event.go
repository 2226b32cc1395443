package dom

import "github.com/chazu/rooted/gc"

// Phase is the dispatch phase an event is in.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

// Event is a dispatched event. Its target fields are edges so a listener
// may keep the event alive past the dispatch.
//
//gc:traceable
type Event struct {
	gc.Header
	typ         string
	bubbles     bool
	cancelable  bool
	dispatching bool
	stopped     bool
	canceled    bool
	phase       Phase

	target        gc.Edge[*EventTarget]
	currentTarget gc.Edge[*EventTarget]
}

// NewEvent allocates an event of type typ.
func NewEvent(h *gc.Heap, typ string, bubbles, cancelable bool) gc.Temp[*Event] {
	return gc.New(h, &Event{typ: typ, bubbles: bubbles, cancelable: cancelable})
}

// EventType returns the event's type, such as "click".
func EventType(ev gc.Ref[*Event]) string { return ev.Get().typ }

func Bubbles(ev gc.Ref[*Event]) bool { return ev.Get().bubbles }

func Cancelable(ev gc.Ref[*Event]) bool { return ev.Get().cancelable }

// EventPhase returns the phase ev is being dispatched in.
func EventPhase(ev gc.Ref[*Event]) Phase { return ev.Get().phase }

func DefaultPrevented(ev gc.Ref[*Event]) bool { return ev.Get().canceled }

// StopPropagation prevents ev from reaching further targets.
func StopPropagation(ev gc.Ref[*Event]) {
	ev.Get().stopped = true
}

// PreventDefault cancels ev if it is cancelable.
func PreventDefault(ev gc.Ref[*Event]) {
	if e := ev.Get(); e.cancelable {
		e.canceled = true
	}
}

// EventTargetOf returns the object the event was dispatched to.
func EventTargetOf(ev gc.Ref[*Event]) (gc.Temp[*EventTarget], bool) {
	return ev.Get().target.Temp()
}

// CurrentTargetOf returns the object whose listeners are running.
func CurrentTargetOf(ev gc.Ref[*Event]) (gc.Temp[*EventTarget], bool) {
	return ev.Get().currentTarget.Temp()
}
