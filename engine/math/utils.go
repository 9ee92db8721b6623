package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AtLeast returns f, or floor if f is smaller.
func AtLeast[T constraints.Ordered](f, floor T) T {
	if f < floor {
		return floor
	}
	return f
}

