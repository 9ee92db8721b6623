//go:build !linux

package platform

import "os"

// CurrentOSThreadID returns the process id on platforms without a cheap
// kernel thread id.
func CurrentOSThreadID() int {
	return os.Getpid()
}
