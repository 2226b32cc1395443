package heapdump

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/rooted/gc"
)

// Path is a retention chain from an object to a root: IDs[0] is the object,
// the last element is rooted, and each element is held by the next.
type Path struct {
	IDs []gc.ID
}

// Root returns the rooted end of the path.
func (p Path) Root() gc.ID {
	return p.IDs[len(p.IDs)-1]
}

// Format renders the path with type names, for example
// "#7 dom.Text <- #5 dom.Element <- #2 dom.Document [registry]".
func (p Path) Format(s *Snapshot) string {
	parts := make([]string, len(p.IDs))
	for i, id := range p.IDs {
		parts[i] = id.String()
		if o, ok := s.Object(id); ok {
			parts[i] += " " + o.Type
		}
	}
	return fmt.Sprintf("%s [%s]", strings.Join(parts, " <- "), strings.Join(s.RootSources(p.Root()), ","))
}

// PathsToRoots finds up to maxPaths shortest paths from the object from to
// any root, by breadth-first search over reverse edges. A rooted object
// yields the single path containing only itself.
func (s *Snapshot) PathsToRoots(from gc.ID, maxPaths int) []Path {
	if maxPaths <= 0 {
		return nil
	}
	s.buildIndex()
	if _, ok := s.index[from]; !ok {
		return nil
	}

	roots := s.rootSet()
	if roots[from] {
		return []Path{{IDs: []gc.ID{from}}}
	}

	type searchNode struct {
		id   gc.ID
		path []gc.ID
	}

	var result []Path
	queue := []searchNode{{id: from, path: []gc.ID{from}}}
	for len(queue) > 0 && len(result) < maxPaths {
		node := queue[0]
		queue = queue[1:]

		for _, ref := range s.reverse[node.id] {
			if slices.Contains(node.path, ref) {
				continue
			}
			path := make([]gc.ID, len(node.path)+1)
			copy(path, node.path)
			path[len(node.path)] = ref

			if roots[ref] {
				result = append(result, Path{IDs: path})
				if len(result) >= maxPaths {
					break
				}
				continue
			}
			queue = append(queue, searchNode{id: ref, path: path})
		}
	}
	return result
}
