package bundle

import (
	"fmt"
	"sync"
)

// ID is the surrogate key assigned by the store.
type ID int64

// State is the persistence state of an in-memory entity.
type State int

const (
	// Transient entities have never been saved.
	Transient State = iota
	// Bound entities carry the id of their stored row. Bound is terminal.
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "transient"
}

// identity holds a persisted id that is set at most once.
type identity struct {
	mu    sync.RWMutex
	id    ID
	bound bool
}

func (i *identity) get() (ID, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id, i.bound
}

func (i *identity) state() State {
	if _, ok := i.get(); ok {
		return Bound
	}
	return Transient
}

// bind attaches id. Binding the same id again is a no-op.
func (i *identity) bind(id ID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.bound {
		if i.id == id {
			return nil
		}
		return fmt.Errorf("%w: have %d, got %d", ErrAlreadyBound, i.id, id)
	}
	i.id = id
	i.bound = true
	return nil
}
