package gc

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Heap: the collector every document object belongs to
// ---------------------------------------------------------------------------

// RootSource supplies roots the registry does not know about, such as the
// handles a script engine holds on its own objects.
type RootSource interface {
	Name() string
	EnumerateRoots(fn func(id ID))
}

// Collector is the narrow interface native code needs from the collector.
type Collector interface {
	Collect() *CollectStats
	IsProtected(id ID) bool
}

var _ Collector = (*Heap)(nil)

// CollectStats describes one collection.
type CollectStats struct {
	RegistryRoots int
	SourceRoots   int
	Marked        int
	Swept         int
	Live          int
	WeakCleared   int
	Duration      time.Duration
	Timestamp     time.Time
}

// Heap owns every object allocated with New and reclaims those that are
// reachable neither from the Registry nor from any RootSource. It stands in
// for the script engine's collector: a plain mark-sweep with no generations
// and no moving.
type Heap struct {
	mu      sync.Mutex
	objects map[ID]Object
	nextID  ID
	top     *Scope

	registry *Registry
	sources  []RootSource
	weak     *weakTable
	verify   bool

	pending     atomic.Int64
	collections atomic.Uint64
	lastStats   atomic.Pointer[CollectStats]
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithTraceVerification makes every collection compare each object's Trace
// against ReflectEdges and treat any difference as fatal.
func WithTraceVerification() HeapOption {
	return func(h *Heap) { h.verify = true }
}

// WithRootSource adds a root source at construction time.
func WithRootSource(src RootSource) HeapOption {
	return func(h *Heap) { h.sources = append(h.sources, src) }
}

// NewHeap creates an empty heap.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		objects:  make(map[ID]Object),
		registry: NewRegistry(),
		weak:     newWeakTable(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// New hands obj to the collector and returns it as a Temp, protected until
// the caller roots or stores it.
func New[T Object](h *Heap, obj T) Temp[T] {
	hdr := obj.GCHeader()
	if hdr.state != stateDetached {
		fatal("New", hdr.id, ErrAllocated)
	}

	h.mu.Lock()
	h.nextID++
	hdr.id = h.nextID
	hdr.heap = h
	hdr.self = obj
	hdr.state = stateLive
	h.objects[hdr.id] = obj
	token := h.registry.Register(hdr.id)
	h.mu.Unlock()

	return newTempWithToken(obj, hdr, token)
}

// AddRootSource registers an additional root source.
func (h *Heap) AddRootSource(src RootSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, src)
}

// Registry returns the heap's rooting registry.
func (h *Heap) Registry() *Registry {
	return h.registry
}

// IsProtected reports whether id is a root: registered by native code or
// held by a root source.
func (h *Heap) IsProtected(id ID) bool {
	if h.registry.IsProtected(id) {
		return true
	}
	h.mu.Lock()
	sources := slices.Clone(h.sources)
	h.mu.Unlock()

	found := false
	for _, src := range sources {
		src.EnumerateRoots(func(root ID) {
			if root == id {
				found = true
			}
		})
		if found {
			return true
		}
	}
	return false
}

// IsLive reports whether id names an object that has not been collected.
func (h *Heap) IsLive(id ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.objects[id]
	return ok
}

// Len returns the number of live objects.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// PendingTemps returns the number of Temps not yet converted or discarded.
func (h *Heap) PendingTemps() int {
	return int(h.pending.Load())
}

// Lookup returns the live object with identity id.
func (h *Heap) Lookup(id ID) (Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[id]
	return obj, ok
}

// ForEach calls fn for every live object in identity order.
func (h *Heap) ForEach(fn func(obj Object)) {
	h.mu.Lock()
	objs := make([]Object, 0, len(h.objects))
	for _, obj := range h.objects {
		objs = append(objs, obj)
	}
	h.mu.Unlock()

	slices.SortFunc(objs, func(a, b Object) int {
		return cmp.Compare(IDOf(a), IDOf(b))
	})
	for _, obj := range objs {
		fn(obj)
	}
}

// ForEachRoot calls fn for every current root with the name of what roots
// it: "registry" or a RootSource's Name.
func (h *Heap) ForEachRoot(fn func(id ID, source string)) {
	for _, id := range h.registry.Snapshot() {
		fn(id, "registry")
	}
	h.mu.Lock()
	sources := slices.Clone(h.sources)
	h.mu.Unlock()
	for _, src := range sources {
		name := src.Name()
		src.EnumerateRoots(func(id ID) { fn(id, name) })
	}
}

// TraceObject asks the object with identity id to report its edges to tr.
// It returns false if no such object is live.
func (h *Heap) TraceObject(id ID, tr Tracer) bool {
	h.mu.Lock()
	obj, ok := h.objects[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.trace(obj, tr)
	return true
}

func (h *Heap) trace(obj Object, tr Tracer) {
	if !h.verify {
		obj.Trace(tr)
		return
	}
	traced := EnumerateEdges(obj)
	fields := ReflectEdges(obj)
	if !sameEdges(traced, fields) {
		fatal("Trace", IDOf(obj), fmt.Errorf("%w: %T traced %v, fields hold %v",
			ErrTraceMismatch, obj, traced, fields))
	}
	for _, id := range traced {
		tr.Visit(id)
	}
}

// Collect runs one mark-sweep collection. Roots are the registry snapshot
// plus every root source; everything not reachable from them through Trace
// is swept, its Header marked collected, and weak handles to it cleared.
func (h *Heap) Collect() *CollectStats {
	start := time.Now()
	stats := &CollectStats{Timestamp: start}

	finalizers := h.markAndSweep(stats)
	for _, fin := range finalizers {
		fin()
	}

	stats.Duration = time.Since(start)
	h.collections.Add(1)
	h.lastStats.Store(stats)

	log.Debugf("collection: %d roots (%d registry, %d source), %d marked, %d swept, %d live",
		stats.RegistryRoots+stats.SourceRoots, stats.RegistryRoots, stats.SourceRoots,
		stats.Marked, stats.Swept, stats.Live)
	return stats
}

func (h *Heap) markAndSweep(stats *CollectStats) []func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	marked := make(map[ID]struct{}, len(h.objects))
	var stack []ID
	push := func(id ID) {
		if _, ok := marked[id]; ok {
			return
		}
		if _, ok := h.objects[id]; !ok {
			fatal("Collect", id, ErrCollected)
		}
		marked[id] = struct{}{}
		stack = append(stack, id)
	}

	// 1. Native roots
	roots := h.registry.Snapshot()
	stats.RegistryRoots = len(roots)
	for _, id := range roots {
		push(id)
	}

	// 2. Script-side roots
	for _, src := range h.sources {
		src.EnumerateRoots(func(id ID) {
			stats.SourceRoots++
			push(id)
		})
	}

	// 3. Transitive closure over traced edges
	tracer := TracerFunc(push)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h.trace(h.objects[id], tracer)
	}
	stats.Marked = len(marked)

	// 4. Weak handles to unmarked objects
	cleared, finalizers := h.weak.process(marked)
	stats.WeakCleared = cleared

	// 5. Sweep
	for id, obj := range h.objects {
		if _, ok := marked[id]; ok {
			continue
		}
		obj.GCHeader().state = stateCollected
		delete(h.objects, id)
		stats.Swept++
	}
	stats.Live = len(h.objects)

	return finalizers
}

// Collections returns the number of completed collections.
func (h *Heap) Collections() uint64 {
	return h.collections.Load()
}

// LastStats returns the statistics of the most recent collection, or nil.
func (h *Heap) LastStats() *CollectStats {
	return h.lastStats.Load()
}
