package platform

import "sync/atomic"

// AtomicIncrement adds one to *p and returns the new value.
func AtomicIncrement(p *uint32) uint32 {
	return atomic.AddUint32(p, 1)
}

// AtomicDecrement subtracts one from *p and returns the new value.
func AtomicDecrement(p *uint32) uint32 {
	return atomic.AddUint32(p, ^uint32(0))
}

// AtomicLoad reads *p.
func AtomicLoad(p *uint32) uint32 {
	return atomic.LoadUint32(p)
}

// CompareAndSet stores value into *p if it currently holds expected. The
// value held before the call is returned either way, so the swap happened
// iff the result equals expected.
func CompareAndSet(p *uint32, expected, value uint32) uint32 {
	for {
		if atomic.CompareAndSwapUint32(p, expected, value) {
			return expected
		}
		if prev := atomic.LoadUint32(p); prev != expected {
			return prev
		}
	}
}

// CompareAndSetPointer is CompareAndSet for pointers.
func CompareAndSetPointer[T any](p *atomic.Pointer[T], expected, value *T) *T {
	for {
		if p.CompareAndSwap(expected, value) {
			return expected
		}
		if prev := p.Load(); prev != expected {
			return prev
		}
	}
}
