// Package platform wraps the operating system facilities the engine core
// depends on: threads, thread identity, atomics and wait primitives.
package platform

import (
	"runtime"
	"time"
)

var startTime = time.Now()

// ProcessorCount returns the number of logical processors usable by the process.
func ProcessorCount() int {
	return runtime.NumCPU()
}

// GetAbsoluteTime returns the seconds elapsed since the platform layer was loaded.
func GetAbsoluteTime() float64 {
	return time.Since(startTime).Seconds()
}

// Sleep blocks the calling thread for ms milliseconds.
func Sleep(ms float64) {
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
}

// Yield gives up the processor so other threads can run.
func Yield() {
	runtime.Gosched()
}
