// Package heapdump captures, encodes and archives snapshots of a gc.Heap,
// and answers "why is this object alive" over them.
package heapdump

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/chazu/rooted/gc"
)

// Object is one live object in a snapshot.
type Object struct {
	ID    gc.ID   `cbor:"1,keyasint"`
	Type  string  `cbor:"2,keyasint"`
	Edges []gc.ID `cbor:"3,keyasint,omitempty"`
}

// Root is one root entry. An object rooted by several sources appears once
// per source.
type Root struct {
	ID     gc.ID  `cbor:"1,keyasint"`
	Source string `cbor:"2,keyasint"`
}

// Snapshot is a point-in-time copy of a heap's object graph.
type Snapshot struct {
	Label   string    `cbor:"1,keyasint"`
	Taken   time.Time `cbor:"2,keyasint"`
	Objects []Object  `cbor:"3,keyasint"`
	Roots   []Root    `cbor:"4,keyasint"`

	index   map[gc.ID]int
	reverse map[gc.ID][]gc.ID
}

// Capture records every live object of h with its traced edges, and every
// current root with the source that holds it.
func Capture(h *gc.Heap, label string) *Snapshot {
	s := &Snapshot{Label: label, Taken: time.Now().UTC()}
	h.ForEach(func(obj gc.Object) {
		s.Objects = append(s.Objects, Object{
			ID:    gc.IDOf(obj),
			Type:  strings.TrimPrefix(fmt.Sprintf("%T", obj), "*"),
			Edges: gc.EnumerateEdges(obj),
		})
	})

	seen := make(map[Root]bool)
	h.ForEachRoot(func(id gc.ID, source string) {
		r := Root{ID: id, Source: source}
		if !seen[r] {
			seen[r] = true
			s.Roots = append(s.Roots, r)
		}
	})
	slices.SortFunc(s.Roots, func(a, b Root) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Source, b.Source))
	})

	log.Debugf("captured %q: %d objects, %d roots", label, len(s.Objects), len(s.Roots))
	return s
}

func (s *Snapshot) buildIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[gc.ID]int, len(s.Objects))
	s.reverse = make(map[gc.ID][]gc.ID)
	for i, o := range s.Objects {
		s.index[o.ID] = i
	}
	for _, o := range s.Objects {
		for i, to := range o.Edges {
			// An object holding two edges to the same target refers to it once.
			if slices.Contains(o.Edges[:i], to) {
				continue
			}
			s.reverse[to] = append(s.reverse[to], o.ID)
		}
	}
}

// Object returns the object with identity id.
func (s *Snapshot) Object(id gc.ID) (Object, bool) {
	s.buildIndex()
	i, ok := s.index[id]
	if !ok {
		return Object{}, false
	}
	return s.Objects[i], true
}

// Referrers returns the objects holding an edge to id, in snapshot order.
func (s *Snapshot) Referrers(id gc.ID) []gc.ID {
	s.buildIndex()
	return slices.Clone(s.reverse[id])
}

// RootSources returns the sources rooting id, sorted.
func (s *Snapshot) RootSources(id gc.ID) []string {
	var out []string
	for _, r := range s.Roots {
		if r.ID == id {
			out = append(out, r.Source)
		}
	}
	return out
}

func (s *Snapshot) rootSet() map[gc.ID]bool {
	set := make(map[gc.ID]bool, len(s.Roots))
	for _, r := range s.Roots {
		set[r.ID] = true
	}
	return set
}

// Reachable returns the identities reachable from the roots, sorted.
func (s *Snapshot) Reachable() []gc.ID {
	s.buildIndex()
	marked := make(map[gc.ID]bool)
	var stack []gc.ID
	for id := range s.rootSet() {
		if _, ok := s.index[id]; ok && !marked[id] {
			marked[id] = true
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range s.Objects[s.index[id]].Edges {
			if _, ok := s.index[to]; ok && !marked[to] {
				marked[to] = true
				stack = append(stack, to)
			}
		}
	}
	out := make([]gc.ID, 0, len(marked))
	for id := range marked {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Garbage returns the live objects no root reaches: what the next
// collection would sweep.
func (s *Snapshot) Garbage() []gc.ID {
	reachable := make(map[gc.ID]bool)
	for _, id := range s.Reachable() {
		reachable[id] = true
	}
	var out []gc.ID
	for _, o := range s.Objects {
		if !reachable[o.ID] {
			out = append(out, o.ID)
		}
	}
	return out
}

// CountByType returns the number of objects of each type.
func (s *Snapshot) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, o := range s.Objects {
		counts[o.Type]++
	}
	return counts
}
