package core

import "fmt"

// AssertionError is the panic value raised by Assert. A broken invariant in
// the engine core is not recoverable: the panic is expected to take the
// process down, tests may recover it.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Message
}

// Assert logs and panics with an *AssertionError when cond is false.
func Assert(cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	LogError("assertion failed: %s", msg)
	panic(&AssertionError{Message: msg})
}
