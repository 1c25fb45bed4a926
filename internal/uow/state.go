package uow

import (
	"sync"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// lifecycle tracks whether a unit is still usable. Both unit variants embed it.
type lifecycle struct {
	mu        sync.Mutex
	closed    bool
	committed bool
}

// active returns an error unless the unit is open and uncommitted.
func (l *lifecycle) active() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return types.ErrUnitClosed
	case l.committed:
		return types.ErrUnitCommitted
	}
	return nil
}

// beginCommit marks the unit committed, failing if it already was.
func (l *lifecycle) beginCommit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return types.ErrUnitClosed
	case l.committed:
		return types.ErrUnitCommitted
	}
	l.committed = true
	return nil
}

// beginClose marks the unit closed. It reports false when the unit was
// already closed, and whether a commit happened before.
func (l *lifecycle) beginClose() (first, committed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, l.committed
	}
	l.closed = true
	return true, l.committed
}
