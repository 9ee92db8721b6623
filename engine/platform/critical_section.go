package platform

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/hzdclouds/engine/core"
)

// CriticalSection is an exclusive lock that the owning thread may acquire
// again while holding it. Every Lock must be paired with an Unlock on the same
// thread. The zero value is unlocked.
type CriticalSection struct {
	mu    sync.Mutex
	owner atomic.Uint64
	depth int
}

func (cs *CriticalSection) Lock() {
	cs.lock(uint64(CurrentThreadID()))
}

func (cs *CriticalSection) Unlock() {
	cs.unlock(uint64(CurrentThreadID()))
}

func (cs *CriticalSection) lock(id uint64) {
	if cs.owner.Load() == id {
		cs.depth++
		return
	}
	cs.mu.Lock()
	cs.owner.Store(id)
	cs.depth = 1
}

func (cs *CriticalSection) unlock(id uint64) {
	core.Assert(cs.owner.Load() == id, "critical section released by thread %d which does not own it", id)
	cs.depth--
	if cs.depth == 0 {
		cs.owner.Store(0)
		cs.mu.Unlock()
	}
}

// Scoped locks the section and returns the matching unlock, which must run on
// the same thread. The thread id is looked up once for both:
//
//	defer cs.Scoped()()
func (cs *CriticalSection) Scoped() func() {
	id := uint64(CurrentThreadID())
	cs.lock(id)
	return func() { cs.unlock(id) }
}
