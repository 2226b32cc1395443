package gc

import (
	"errors"
	"fmt"
)

var (
	ErrCollected     = errors.New("object already collected")
	ErrReleased      = errors.New("root handle released")
	ErrConsumed      = errors.New("transitional handle already converted")
	ErrNilHandle     = errors.New("nil handle")
	ErrScopeOrder    = errors.New("scope exited out of order")
	ErrScopeClosed   = errors.New("scope already exited")
	ErrForeignHeap   = errors.New("object belongs to another heap")
	ErrAllocated     = errors.New("object already allocated")
	ErrIdentity      = errors.New("cast changed object identity")
	ErrTraceMismatch = errors.New("trace does not match traced fields")
	ErrStopped       = errors.New("mutator stopped")
)

// InvariantError reports a broken rooting invariant. It is never returned;
// it is the panic value raised when the static discipline has been bypassed
// and continuing would risk touching reclaimed memory.
type InvariantError struct {
	Op  string
	ID  ID
	Err error
}

func (e *InvariantError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("gc: %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("gc: %s: %v", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// fatal logs and panics with an InvariantError.
func fatal(op string, id ID, err error) {
	ie := &InvariantError{Op: op, ID: id, Err: err}
	log.Critical(ie.Error())
	panic(ie)
}
