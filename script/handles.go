package script

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/rooted/gc"
)

// handle is a script-side persistent reference to a heap object.
type handle struct {
	id        string
	target    gc.ID
	className string
	sessionID string
	created   time.Time
	lastUsed  time.Time
}

// HandleStore maps opaque string IDs to heap identities. It is the script
// engine's own root set: the heap enumerates it on every collection, so
// anything a handle names stays alive without a registry entry.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	nextID  atomic.Uint64
}

var _ gc.RootSource = (*HandleStore)(nil)

// NewHandleStore creates an empty handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
	}
}

// Create records a handle for target and returns its opaque ID.
func (s *HandleStore) Create(target gc.ID, className, sessionID string) string {
	id := fmt.Sprintf("h-%d", s.nextID.Add(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:        id,
		target:    target,
		className: className,
		sessionID: sessionID,
		created:   now,
		lastUsed:  now,
	}
	return id
}

// Lookup returns the identity a handle names and marks the handle used.
func (s *HandleStore) Lookup(id string) (gc.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return 0, false
	}
	h.lastUsed = time.Now()
	return h.target, true
}

// ClassName returns the class recorded when the handle was created.
func (s *HandleStore) ClassName(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.handles[id]; ok {
		return h.className
	}
	return ""
}

// Release removes a handle. Releasing an unknown handle is a no-op.
func (s *HandleStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// ReleaseSession removes every handle owned by a session and returns how
// many there were.
func (s *HandleStore) ReleaseSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, h := range s.handles {
		if h.sessionID == sessionID {
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// Sweep removes handles that haven't been used within the TTL. Handles of
// GlobalSession never expire.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if h.sessionID != GlobalSession && h.lastUsed.Before(cutoff) {
			delete(s.handles, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("swept %d idle handles", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Name implements gc.RootSource.
func (s *HandleStore) Name() string {
	return "script"
}

// EnumerateRoots implements gc.RootSource. Each distinct identity is
// reported once, in ascending order.
func (s *HandleStore) EnumerateRoots(fn func(id gc.ID)) {
	s.mu.RLock()
	ids := make([]gc.ID, 0, len(s.handles))
	for _, h := range s.handles {
		ids = append(ids, h.target)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		fn(id)
	}
}
