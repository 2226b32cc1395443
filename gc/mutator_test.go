package gc

import (
	"errors"
	"strings"
	"testing"
)

func TestMutatorDo(t *testing.T) {
	m := NewMutator(NewHeap())
	defer m.Stop()

	v, err := m.Do(func(h *Heap) any {
		s := h.Enter()
		defer s.Exit()
		New(h, &testNode{name: "x"}).Root(s)
		return h.Len()
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v.(int) != 1 {
		t.Errorf("Len = %v, want 1", v)
	}
}

func TestMutatorRecoversPanic(t *testing.T) {
	m := NewMutator(NewHeap())
	defer m.Stop()

	_, err := m.Do(func(*Heap) any { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want panic message", err)
	}

	// The mutator keeps serving after a recovered panic.
	if _, err := m.Do(func(*Heap) any { return nil }); err != nil {
		t.Errorf("Do after panic: %v", err)
	}
}

func TestMutatorRepanicsInvariant(t *testing.T) {
	m := NewMutator(NewHeap())
	defer m.Stop()

	expectInvariant(t, ErrNilHandle, func() {
		m.Do(func(*Heap) any {
			var r Ref[*testNode]
			return r.Get()
		})
	})
}

func TestMutatorStopped(t *testing.T) {
	m := NewMutator(NewHeap())
	m.Stop()
	m.Stop()

	if _, err := m.Do(func(*Heap) any { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}
