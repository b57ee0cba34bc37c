package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// lockArena hands out one mutex per lease id. Entries are reference counted
// and dropped when the last holder releases them.
type lockArena struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*leaseLock
}

type leaseLock struct {
	mu   sync.Mutex
	refs int
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[uuid.UUID]*leaseLock)}
}

// Lock blocks until the lease lock is held and returns its release func.
func (a *lockArena) Lock(id uuid.UUID) (unlock func()) {
	a.mu.Lock()
	l, ok := a.locks[id]
	if !ok {
		l = &leaseLock{}
		a.locks[id] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, id)
		}
		a.mu.Unlock()
	}
}

func (a *lockArena) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
