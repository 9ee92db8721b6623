package platform

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// ThreadID identifies an engine thread for its whole lifetime. It is the id of
// the goroutine, which stays stable even when the runtime moves the goroutine
// between OS threads. Zero is never a valid id.
type ThreadID uint64

var goroutinePrefix = []byte("goroutine ")

// CurrentThreadID returns the ThreadID of the caller.
func CurrentThreadID() ThreadID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic("platform: cannot parse goroutine id: " + err.Error())
	}
	return ThreadID(id)
}

var threadNames sync.Map // ThreadID -> string

// SetThreadName names the calling thread. Used by the profiler and in logs.
func SetThreadName(name string) {
	threadNames.Store(CurrentThreadID(), name)
}

// ThreadName returns the name registered for id, or "Thread <id>".
func ThreadName(id ThreadID) string {
	if v, ok := threadNames.Load(id); ok {
		return v.(string)
	}
	return "Thread " + strconv.FormatUint(uint64(id), 10)
}

func forgetThreadName(id ThreadID) {
	threadNames.Delete(id)
}
