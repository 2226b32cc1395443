package gc

import (
	"errors"
	"fmt"
	"sync"
)

type mutatorJob struct {
	fn   func(*Heap) any
	done chan mutatorResult
}

type mutatorResult struct {
	value any
	err   error
	fatal *InvariantError
}

// Mutator serializes all access to a heap through one goroutine. The object
// graph has a single logical mutator; native callers, script callbacks and
// the periodic collector all submit work here, so a collection only ever
// runs between jobs, never while a registration is half done.
type Mutator struct {
	heap     *Heap
	jobs     chan mutatorJob
	quit     chan struct{}
	stopOnce sync.Once
}

// NewMutator starts the mutator goroutine for h.
func NewMutator(h *Heap) *Mutator {
	m := &Mutator{
		heap: h,
		jobs: make(chan mutatorJob, 64),
		quit: make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Mutator) loop() {
	for {
		select {
		case job := <-m.jobs:
			job.done <- m.execute(job.fn)
		case <-m.quit:
			return
		}
	}
}

// execute runs fn, turning ordinary panics into errors. Invariant violations
// are carried back so Do can re-raise them on the caller's goroutine.
func (m *Mutator) execute(fn func(*Heap) any) (result mutatorResult) {
	defer func() {
		if r := recover(); r != nil {
			var ie *InvariantError
			if err, ok := r.(error); ok && errors.As(err, &ie) {
				result.fatal = ie
				return
			}
			result.err = fmt.Errorf("mutator job panicked: %v", r)
		}
	}()
	result.value = fn(m.heap)
	return result
}

// Do runs fn on the mutator goroutine and waits for it. A panic in fn is
// returned as an error, except an InvariantError, which is re-panicked.
func (m *Mutator) Do(fn func(*Heap) any) (any, error) {
	job := mutatorJob{fn: fn, done: make(chan mutatorResult, 1)}
	select {
	case m.jobs <- job:
	case <-m.quit:
		return nil, ErrStopped
	}

	select {
	case result := <-job.done:
		if result.fatal != nil {
			panic(result.fatal)
		}
		return result.value, result.err
	case <-m.quit:
		return nil, ErrStopped
	}
}

// Heap returns the heap m serializes.
func (m *Mutator) Heap() *Heap {
	return m.heap
}

// Stop shuts the mutator down. Pending and later Do calls return ErrStopped.
func (m *Mutator) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
}
