package dom

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/chazu/rooted/gc"
)

// Invoker calls script functions. The script runtime implements it; dom
// only ever sees callbacks as opaque collector-owned objects.
type Invoker interface {
	Invoke(fn, this gc.Ref[gc.Object], args ...gc.Ref[gc.Object]) error
}

// AddEventListener registers callback for events of type typ on target.
// Registering the same callback for the same type twice has no effect.
func AddEventListener(target gc.Ref[*EventTarget], typ string, callback gc.Ref[gc.Object], once bool) {
	t := target.Get()
	for i := range t.listeners {
		if t.listeners[i].typ == typ && t.listeners[i].callback.Same(callback) {
			return
		}
	}
	t.listeners = append(t.listeners, listener{typ: typ, once: once})
	t.listeners[len(t.listeners)-1].callback.Set(callback)
}

// RemoveEventListener unregisters callback and reports whether it was
// registered.
func RemoveEventListener(target gc.Ref[*EventTarget], typ string, callback gc.Ref[gc.Object]) bool {
	t := target.Get()
	for i := range t.listeners {
		if t.listeners[i].typ == typ && t.listeners[i].callback.Same(callback) {
			t.listeners = slices.Delete(t.listeners, i, i+1)
			return true
		}
	}
	return false
}

// Dispatch delivers ev to target and, if the event bubbles, to each
// ancestor up to the document and then its window. Listener errors are
// collected and returned together; they do not stop propagation.
func Dispatch(inv Invoker, target gc.Ref[*Node], ev gc.Ref[*Event]) error {
	e := ev.Get()
	if e.dispatching {
		return fmt.Errorf("dispatch %q: already dispatching: %w", e.typ, ErrInvalidState)
	}

	s := target.Heap().Enter()
	defer s.Exit()

	path := []gc.Ref[*EventTarget]{TargetOf(target)}
	top := target
	for p, ok := target.Get().parent.Root(s); ok; p, ok = p.Borrow().Get().parent.Root(s) {
		path = append(path, TargetOf(p.Borrow()))
		top = p.Borrow()
	}
	if doc, ok := gc.Downcast[*Document](top); ok {
		if w, ok := doc.Get().window.Root(s); ok {
			path = append(path, TargetOf(w.Borrow()))
		}
	}

	e.dispatching = true
	e.stopped = false
	e.target.Set(path[0])
	defer func() {
		e.dispatching = false
		e.phase = PhaseNone
		e.currentTarget.Clear()
	}()

	var errs []error
	for i, t := range path {
		if i > 0 && !e.bubbles {
			break
		}
		e.phase = PhaseBubbling
		if i == 0 {
			e.phase = PhaseAtTarget
		}
		e.currentTarget.Set(t)
		errs = append(errs, invokeListeners(s, inv, t, ev)...)
		if e.stopped {
			break
		}
	}

	log.Debugf("dispatched %q to %s across %d targets", e.typ, target.ID(), len(path))
	return errors.Join(errs...)
}

func invokeListeners(s *gc.Scope, inv Invoker, target gc.Ref[*EventTarget], ev gc.Ref[*Event]) []error {
	t, typ := target.Get(), ev.Get().typ

	// Listeners added during dispatch do not run; removed ones still do.
	var callbacks []*gc.Root[gc.Object]
	for i := 0; i < len(t.listeners); {
		l := &t.listeners[i]
		if l.typ != typ {
			i++
			continue
		}
		if cb, ok := l.callback.Root(s); ok {
			callbacks = append(callbacks, cb)
		}
		if l.once {
			t.listeners = slices.Delete(t.listeners, i, i+1)
			continue
		}
		i++
	}

	var errs []error
	for _, cb := range callbacks {
		if err := inv.Invoke(cb.Borrow(), gc.Erase(target), gc.Erase(ev)); err != nil {
			errs = append(errs, fmt.Errorf("listener %s for %q: %w", cb.ID(), typ, err))
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

//gc:traceable
type timer struct {
	id       int
	delay    time.Duration
	callback gc.Edge[gc.Object]
}

// SetTimeout schedules callback to run after delay on the next RunTimers
// and returns the timer id.
func SetTimeout(w gc.Ref[*Window], callback gc.Ref[gc.Object], delay time.Duration) int {
	win := w.Get()
	win.nextTimer++
	win.timers = append(win.timers, timer{id: win.nextTimer, delay: delay})
	win.timers[len(win.timers)-1].callback.Set(callback)
	return win.nextTimer
}

// ClearTimeout cancels a pending timer and reports whether it was pending.
func ClearTimeout(w gc.Ref[*Window], id int) bool {
	win := w.Get()
	for i := range win.timers {
		if win.timers[i].id == id {
			win.timers = slices.Delete(win.timers, i, i+1)
			return true
		}
	}
	return false
}

// PendingTimers returns the number of scheduled timers.
func PendingTimers(w gc.Ref[*Window]) int {
	return len(w.Get().timers)
}

// RunTimers runs every pending timer in order of delay, then scheduling.
// Timers scheduled by a callback wait for the next call.
func RunTimers(inv Invoker, w gc.Ref[*Window]) error {
	win := w.Get()
	s := w.Heap().Enter()
	defer s.Exit()

	slices.SortStableFunc(win.timers, func(a, b timer) int { //gc:allow-unrooted
		switch {
		case a.delay < b.delay:
			return -1
		case a.delay > b.delay:
			return 1
		}
		return a.id - b.id
	})

	callbacks := make([]*gc.Root[gc.Object], 0, len(win.timers))
	for i := range win.timers {
		if cb, ok := win.timers[i].callback.Root(s); ok {
			callbacks = append(callbacks, cb)
		}
	}
	win.timers = nil

	var errs []error
	this := gc.Erase(w)
	for _, cb := range callbacks {
		if err := inv.Invoke(cb.Borrow(), this); err != nil {
			errs = append(errs, fmt.Errorf("timer callback %s: %w", cb.ID(), err))
		}
	}
	return errors.Join(errs...)
}
