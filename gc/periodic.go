package gc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// PeriodicCollector: timed collections through the Mutator
// ---------------------------------------------------------------------------

// DefaultCollectInterval is the default period between collections.
const DefaultCollectInterval = 30 * time.Second

// PeriodicCollector runs a collection on a fixed interval. Collections are
// submitted to the Mutator, so they run at safe points between jobs.
type PeriodicCollector struct {
	mutator  *Mutator
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	count     atomic.Uint64
	lastStats atomic.Pointer[CollectStats]
}

// NewPeriodicCollector creates a collector for m's heap. A non-positive
// interval selects DefaultCollectInterval.
func NewPeriodicCollector(m *Mutator, interval time.Duration) *PeriodicCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	pc := &PeriodicCollector{
		mutator:  m,
		interval: interval,
	}
	pc.enabled.Store(true)
	return pc
}

// Start begins the collection loop. Calling Start on a running collector is
// a no-op.
func (pc *PeriodicCollector) Start() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.stop != nil {
		return
	}
	pc.stop = make(chan struct{})
	pc.stopped = make(chan struct{})

	// Captured so the goroutine never reads fields Stop has reset.
	stopCh := pc.stop
	stoppedCh := pc.stopped
	go pc.loop(stopCh, stoppedCh)
}

// Stop halts the loop and waits for it to finish. Safe to call repeatedly
// or on a collector that was never started.
func (pc *PeriodicCollector) Stop() {
	pc.mu.Lock()
	stopCh := pc.stop
	stoppedCh := pc.stopped
	pc.stop = nil
	pc.stopped = nil
	pc.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled pauses or resumes collections without stopping the loop.
func (pc *PeriodicCollector) SetEnabled(enabled bool) {
	pc.enabled.Store(enabled)
}

// IsEnabled reports whether timed collections run.
func (pc *PeriodicCollector) IsEnabled() bool {
	return pc.enabled.Load()
}

// Interval returns the collection period.
func (pc *PeriodicCollector) Interval() time.Duration {
	return pc.interval
}

// Count returns the number of collections this collector has run.
func (pc *PeriodicCollector) Count() uint64 {
	return pc.count.Load()
}

// LastStats returns the most recent collection's statistics, or nil.
func (pc *PeriodicCollector) LastStats() *CollectStats {
	return pc.lastStats.Load()
}

// CollectNow runs a collection immediately, regardless of the timer.
func (pc *PeriodicCollector) CollectNow() (*CollectStats, error) {
	v, err := pc.mutator.Do(func(h *Heap) any {
		return h.Collect()
	})
	if err != nil {
		return nil, err
	}
	stats, ok := v.(*CollectStats)
	if !ok {
		return nil, fmt.Errorf("unexpected collection result %T", v)
	}
	pc.count.Add(1)
	pc.lastStats.Store(stats)
	return stats, nil
}

func (pc *PeriodicCollector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(pc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !pc.enabled.Load() {
				continue
			}
			if _, err := pc.CollectNow(); err != nil {
				log.Warningf("periodic collection: %v", err)
			}
		}
	}
}
