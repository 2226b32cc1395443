package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/chazu/rooted/config"
	"github.com/chazu/rooted/dom"
	"github.com/chazu/rooted/gc"
	"github.com/chazu/rooted/heapdump"
	"github.com/chazu/rooted/script"
)

const demoSession = "demo"

// handleDemoCommand processes the `rooted demo` subcommand: it builds a
// small page whose window only a script handle keeps alive, runs listeners
// and a timer that detaches a node, then drops the handle and the global's
// reference to the body. A snapshot is captured and archived after each
// step.
func handleDemoCommand(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	save := fs.Bool("save", true, "Archive snapshots in the configured database")
	fs.Parse(args)

	interval, err := cfg.CollectInterval()
	if err != nil {
		fatalf("%v", err)
	}

	h := gc.NewHeap(cfg.HeapOptions()...)
	m := gc.NewMutator(h)
	defer m.Stop()
	pc := gc.NewPeriodicCollector(m, interval)
	pc.SetEnabled(cfg.Collector.Enabled)
	pc.Start()
	defer pc.Stop()

	res, err := m.Do(func(h *gc.Heap) any { return script.NewRuntime(h) })
	if err != nil {
		fatalf("%v", err)
	}
	rt := res.(*script.Runtime)
	stopSweeper, err := startHandleSweeper(rt, cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer stopSweeper()

	var snaps []*heapdump.Snapshot
	capture := func(label string) {
		res, err := m.Do(func(h *gc.Heap) any { return heapdump.Capture(h, label) })
		if err != nil {
			fatalf("capture %s: %v", label, err)
		}
		snap := res.(*heapdump.Snapshot)
		snaps = append(snaps, snap)
		fmt.Printf("%-10s %3d objects %3d roots %3d garbage\n",
			label, len(snap.Objects), len(snap.Roots), len(snap.Garbage()))
	}
	collect := func() {
		stats, err := pc.CollectNow()
		if err != nil {
			fatalf("collect: %v", err)
		}
		fmt.Printf("collected: marked %d, swept %d, weak cleared %d in %s\n",
			stats.Marked, stats.Swept, stats.WeakCleared, stats.Duration.Round(time.Microsecond))
	}

	res, err = m.Do(func(h *gc.Heap) any { return buildPage(h, rt) })
	if err != nil {
		fatalf("%v", err)
	}
	page := res.(*demoPage)
	if page.err != nil {
		fatalf("%v", page.err)
	}
	fmt.Printf("page %q: %d click(s), %d timer(s) ran\n", page.title, page.clicks, page.timers)

	capture("built")
	collect()
	capture("collected")

	rt.ReleaseSession(demoSession)
	if _, err := m.Do(func(h *gc.Heap) any { return dropBody(h, rt) }); err != nil {
		fatalf("%v", err)
	}
	collect()
	capture("released")

	if !*save {
		return
	}
	ctx := context.Background()
	st, err := heapdump.OpenStore(ctx, cfg.SnapshotPath())
	if err != nil {
		fatalf("%v", err)
	}
	defer st.Close()
	for _, snap := range snaps {
		id, err := st.Save(ctx, snap)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("archived %s as snapshot %d\n", snap.Label, id)
	}
}

// startHandleSweeper expires idle script handles as the [script] section
// asks. The returned function stops it.
func startHandleSweeper(rt *script.Runtime, cfg *config.Config) (func(), error) {
	ttl, every, err := cfg.HandleSweep()
	if err != nil {
		return nil, err
	}
	if ttl == 0 {
		return func() {}, nil
	}
	return rt.Handles().StartSweeper(every, ttl), nil
}

// dropBody deletes the global's reference to the body reflector, the last
// path from a script root into the page.
func dropBody(h *gc.Heap, rt *script.Runtime) bool {
	s := h.Enter()
	defer s.Exit()
	return script.DeleteProperty(rt.Global(s).Borrow(), "body")
}

type demoPage struct {
	title  string
	clicks int
	timers int
	err    error
}

// buildPage runs on the mutator goroutine. The window survives it only
// through the script handle held for demoSession.
func buildPage(h *gc.Heap, rt *script.Runtime) *demoPage {
	page := &demoPage{}
	page.err = populate(h, rt, page)
	return page
}

func populate(h *gc.Heap, rt *script.Runtime, page *demoPage) error {
	s := h.Enter()
	defer s.Exit()

	win := dom.Open(h, "https://example.test/demo").Root(s)
	rt.Hold(gc.Erase(win.Borrow()), demoSession)

	docTmp, _ := dom.DocumentOf(win.Borrow())
	doc := docTmp.Root(s)

	appendNew := func(parent gc.Ref[*dom.Node], name, text string) (*gc.Root[*dom.Element], error) {
		tmp, err := dom.CreateElement(doc.Borrow(), name)
		if err != nil {
			return nil, err
		}
		el := tmp.Root(s)
		if err := dom.AppendChild(parent, dom.NodeOf(el.Borrow())); err != nil {
			return nil, err
		}
		if text != "" {
			t := dom.CreateTextNode(doc.Borrow(), text).Root(s)
			if err := dom.AppendChild(dom.NodeOf(el.Borrow()), dom.NodeOf(t.Borrow())); err != nil {
				return nil, err
			}
		}
		return el, nil
	}

	html, err := appendNew(dom.NodeOf(doc.Borrow()), "html", "")
	if err != nil {
		return err
	}
	head, err := appendNew(dom.NodeOf(html.Borrow()), "head", "")
	if err != nil {
		return err
	}
	if _, err := appendNew(dom.NodeOf(head.Borrow()), "title", "Rooted demo"); err != nil {
		return err
	}
	body, err := appendNew(dom.NodeOf(html.Borrow()), "body", "")
	if err != nil {
		return err
	}

	paragraphs := make([]*gc.Root[*dom.Element], 0, 3)
	for i := range 3 {
		p, err := appendNew(dom.NodeOf(body.Borrow()), "p", fmt.Sprintf("paragraph %d", i))
		if err != nil {
			return err
		}
		if err := dom.SetAttribute(p.Borrow(), "id", fmt.Sprintf("p%d", i)); err != nil {
			return err
		}
		paragraphs = append(paragraphs, p)
	}

	onClick := rt.NewFunction("onClick", func(*script.Runtime, gc.Ref[gc.Object], []gc.Ref[gc.Object]) error {
		page.clicks++
		return nil
	}).Root(s)
	dom.AddEventListener(dom.TargetOf(body.Borrow()), "click", gc.Erase(onClick.Borrow()), false)

	// The timer detaches the middle paragraph; nothing else holds it, so
	// the next collection sweeps it and its text.
	detach := rt.NewFunction("detach", detachParagraph(page, "p1")).Root(s)
	dom.SetTimeout(win.Borrow(), gc.Erase(detach.Borrow()), 10*time.Millisecond)

	// Scripts see the body through its reflector, stored on the global.
	global := rt.Global(s)
	reflector := rt.Reflect(gc.Erase(body.Borrow())).Root(s)
	script.SetProperty(global.Borrow(), "body", gc.Erase(reflector.Borrow()))

	ev := dom.NewEvent(h, "click", true, true).Root(s)
	if err := dom.Dispatch(rt, dom.NodeOf(paragraphs[0].Borrow()), ev.Borrow()); err != nil {
		return err
	}
	if err := dom.RunTimers(rt, win.Borrow()); err != nil {
		return err
	}
	page.title = dom.Title(doc.Borrow())
	return nil
}

// detachParagraph returns a timer body that removes the element with the
// given id from its parent. It roots everything it touches from the window
// it is invoked on, in its own scope.
func detachParagraph(page *demoPage, id string) script.Func {
	return func(_ *script.Runtime, this gc.Ref[gc.Object], _ []gc.Ref[gc.Object]) error {
		page.timers++
		win, ok := gc.Downcast[*dom.Window](this)
		if !ok {
			return fmt.Errorf("detach: invoked on %T, want a window", this.Get())
		}
		s := win.Heap().Enter()
		defer s.Exit()

		docTmp, ok := dom.DocumentOf(win)
		if !ok {
			return errors.New("detach: window has no document")
		}
		doc := docTmp.Root(s)
		elTmp, ok := dom.GetElementByID(doc.Borrow(), id)
		if !ok {
			return fmt.Errorf("detach: no element %q", id)
		}
		el := elTmp.Root(s)
		parentTmp, ok := dom.Parent(dom.NodeOf(el.Borrow()))
		if !ok {
			return fmt.Errorf("detach: element %q is not attached", id)
		}
		parent := parentTmp.Root(s)
		return dom.RemoveChild(parent.Borrow(), dom.NodeOf(el.Borrow()))
	}
}
