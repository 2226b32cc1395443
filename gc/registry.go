package gc

import (
	"slices"
	"sync"
)

// ---------------------------------------------------------------------------
// Registry: identities protected from collection by native handles
// ---------------------------------------------------------------------------

// Registry is the set of identities native code currently protects, beyond
// whatever the script engine's own handles protect. Registrations of the
// same identity nest; the identity stays protected until every Token for it
// has been released.
//
// The registry has its own lock, and the collector reads the root set
// through Snapshot, so a collection never observes a half-applied
// registration. That lock does not cover the rest of the heap: creating a
// Root, writing an Edge and collecting must still be serialized by the
// caller, normally by running them all on one Mutator.
type Registry struct {
	mu      sync.Mutex
	entries map[ID]int

	registered   uint64
	deregistered uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[ID]int),
	}
}

// Token is the receipt for one registration. Releasing it deregisters the
// identity exactly once; later calls are no-ops.
type Token struct {
	reg      *Registry
	id       ID
	released bool
}

// Register protects id and returns the token that ends the protection.
func (r *Registry) Register(id ID) *Token {
	r.mu.Lock()
	r.entries[id]++
	r.registered++
	r.mu.Unlock()
	return &Token{reg: r, id: id}
}

// Release deregisters the token's identity. It is safe to call more than
// once and on a nil token.
func (t *Token) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	t.reg.deregister(t.id)
}

// ID returns the identity the token protects.
func (t *Token) ID() ID {
	return t.id
}

func (r *Registry) deregister(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.entries[id]
	if !ok {
		return
	}
	r.deregistered++
	if n <= 1 {
		delete(r.entries, id)
		return
	}
	r.entries[id] = n - 1
}

// IsProtected reports whether at least one token for id is outstanding.
func (r *Registry) IsProtected(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Count returns the number of outstanding tokens for id.
func (r *Registry) Count(id ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

// Len returns the number of distinct protected identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the protected identities in ascending order.
func (r *Registry) Snapshot() []ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RegistryStats counts registry traffic since creation.
type RegistryStats struct {
	Protected    int
	Registered   uint64
	Deregistered uint64
}

// Stats returns registry counters.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegistryStats{
		Protected:    len(r.entries),
		Registered:   r.registered,
		Deregistered: r.deregistered,
	}
}

// Each calls fn for every protected identity in ascending order. It iterates
// a snapshot, so fn may register or release tokens.
func (r *Registry) Each(fn func(id ID, count int)) {
	r.mu.Lock()
	counts := make(map[ID]int, len(r.entries))
	for id, n := range r.entries {
		counts[id] = n
	}
	r.mu.Unlock()

	ids := make([]ID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fn(id, counts[id])
	}
}
