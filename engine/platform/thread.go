package platform

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/spaghettifunk/hzdclouds/engine/core"
)

var (
	ErrNilThreadFunc  = errors.New("thread function is nil")
	ErrThreadDetached = errors.New("thread is detached and cannot be joined")
)

// ThreadFunc is the entry point of a Thread, called with the opaque argument
// given to NewThread.
type ThreadFunc func(arg interface{})

// Thread is a goroutine pinned to its own OS thread for its whole life.
type Thread struct {
	name       string
	id         ThreadID
	osThreadID int
	done       chan struct{}
	detached   atomic.Bool
}

// NewThread starts fn(arg) on a new thread and returns once the thread is
// running and its id is known.
func NewThread(name string, fn ThreadFunc, arg interface{}) (*Thread, error) {
	if fn == nil {
		return nil, ErrNilThreadFunc
	}
	t := &Thread{
		name: name,
		done: make(chan struct{}),
	}
	started := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		t.id = CurrentThreadID()
		t.osThreadID = CurrentOSThreadID()
		if name != "" {
			SetThreadName(name)
		}
		close(started)

		defer close(t.done)
		defer forgetThreadName(t.id)
		fn(arg)
	}()
	<-started
	core.LogDebug("thread '%s' started (id=%d, os=%d)", name, t.id, t.osThreadID)
	return t, nil
}

// Join blocks until the thread function returns.
func (t *Thread) Join() error {
	if t.detached.Load() {
		return ErrThreadDetached
	}
	<-t.done
	return nil
}

// Detach gives up the right to join the thread. The thread keeps running.
func (t *Thread) Detach() {
	t.detached.Store(true)
}

// Done is closed when the thread function has returned.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

func (t *Thread) ID() ThreadID {
	return t.id
}

func (t *Thread) OSThreadID() int {
	return t.osThreadID
}

func (t *Thread) Name() string {
	return t.name
}
