package profiler

import (
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/hzdclouds/engine/platform"
)

// Frame is an immutable snapshot of one completed root scope and everything
// recorded below it. Frames are shared between the history ring and any
// report reading them, so they must never be modified once saved.
type Frame struct {
	ID         uuid.UUID
	ThreadID   platform.ThreadID
	ThreadName string
	// Number counts the frames saved by the thread, starting at 0.
	Number uint64
	// Nodes holds the tree, the root is at index 0.
	Nodes []Node
}

func (f *Frame) Root() *Node {
	if len(f.Nodes) == 0 {
		return nil
	}
	return &f.Nodes[0]
}

// Children returns the indices of the children of node i, in call order.
func (f *Frame) Children(i int32) []int32 {
	return children(f.Nodes, i)
}

// Elapsed is the duration of the root scope.
func (f *Frame) Elapsed() time.Duration {
	if root := f.Root(); root != nil {
		return root.Elapsed()
	}
	return 0
}

// Closed reports whether every scope of the frame has been popped.
func (f *Frame) Closed() bool {
	for i := range f.Nodes {
		if !f.Nodes[i].Closed {
			return false
		}
	}
	return true
}
