//go:build noprofile

package profiler

const Enabled = false
