//go:build !noprofile

package profiler

// Enabled is false in builds tagged noprofile, where every instrumentation
// call returns immediately.
const Enabled = true
