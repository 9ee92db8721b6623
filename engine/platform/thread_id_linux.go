//go:build linux

package platform

import "golang.org/x/sys/unix"

// CurrentOSThreadID returns the kernel id of the OS thread running the caller.
// Only stable for goroutines locked to their thread, such as Thread bodies.
func CurrentOSThreadID() int {
	return unix.Gettid()
}
