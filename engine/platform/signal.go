package platform

import (
	"sync"
	"time"
)

// Signal is a broadcast wake-up event. SignalAll releases every thread blocked
// in Wait. When nobody is waiting the wake is remembered once, so a thread
// that is about to wait does not miss it, but repeated signals never add up.
// The zero value is ready to use.
type Signal struct {
	mu      sync.Mutex
	ch      chan struct{}
	waiters int
	pending bool
}

func NewSignal() *Signal {
	return &Signal{}
}

// Wait blocks until the signal is raised.
func (s *Signal) Wait() {
	s.wait(nil, -1)
}

// WaitFor blocks for at most timeout and reports whether the signal was raised.
func (s *Signal) WaitFor(timeout time.Duration) bool {
	return s.wait(nil, timeout)
}

// WaitUnless blocks until the signal is raised, unless ready already reports
// true. ready is evaluated under the signal's lock: a SignalAll issued after a
// state change can never slip between ready's check and the wait.
func (s *Signal) WaitUnless(ready func() bool) {
	s.wait(ready, -1)
}

// WaitForUnless is WaitUnless bounded by timeout. It returns true when ready
// held or the signal was raised.
func (s *Signal) WaitForUnless(ready func() bool, timeout time.Duration) bool {
	return s.wait(ready, timeout)
}

func (s *Signal) wait(ready func() bool, timeout time.Duration) bool {
	s.mu.Lock()
	if ready != nil && ready() {
		s.mu.Unlock()
		return true
	}
	if s.pending {
		s.pending = false
		s.mu.Unlock()
		return true
	}
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	ch := s.ch
	s.waiters++
	s.mu.Unlock()

	if timeout < 0 {
		<-ch
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != ch {
		// raised while the timer fired
		return true
	}
	s.waiters--
	return false
}

// SignalAll wakes every waiting thread.
func (s *Signal) SignalAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiters == 0 {
		s.pending = true
		return
	}
	close(s.ch)
	s.ch = nil
	s.waiters = 0
}
