package profiler

import (
	"slices"

	"github.com/google/uuid"
	"github.com/spaghettifunk/hzdclouds/engine/containers"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/platform"
)

type ProfileState int

const (
	// Every scope is recorded.
	PROFILE_STATE_RUNNING ProfileState = iota
	// Scopes are recorded until the current root closes, then the profile pauses.
	PROFILE_STATE_RUNNING_SINGLE_FRAME
	// New scopes are dropped. Scopes opened before the pause are still closed.
	PROFILE_STATE_PAUSING
	// Waiting for a scope boundary to record exactly one frame.
	PROFILE_STATE_STEPPING
	// Waiting for a scope boundary to record again.
	PROFILE_STATE_RESUMING
)

func (s ProfileState) String() string {
	switch s {
	case PROFILE_STATE_RUNNING:
		return "running"
	case PROFILE_STATE_RUNNING_SINGLE_FRAME:
		return "running single frame"
	case PROFILE_STATE_PAUSING:
		return "pausing"
	case PROFILE_STATE_STEPPING:
		return "stepping"
	case PROFILE_STATE_RESUMING:
		return "resuming"
	}
	return "unknown"
}

// ThreadProfile accumulates the scopes of one thread. The profiler thread
// folds events into it; any thread may change its state or read its history.
type ThreadProfile struct {
	cs       platform.CriticalSection
	threadID platform.ThreadID
	name     string

	arena  nodeArena
	active int32
	// depth is the number of open nodes in the arena. It never exceeds
	// sampleCount: pushes dropped while paused are only counted.
	depth       int
	sampleCount int
	state       ProfileState

	history    *containers.RingQueue[*Frame]
	frameCount uint64
}

func newThreadProfile(id platform.ThreadID, name string, historySize int, state ProfileState) *ThreadProfile {
	return &ThreadProfile{
		threadID: id,
		name:     name,
		active:   NO_NODE,
		state:    state,
		history:  containers.NewRingQueue[*Frame](historySize),
	}
}

func (tp *ThreadProfile) ThreadID() platform.ThreadID {
	return tp.threadID
}

func (tp *ThreadProfile) Name() string {
	defer tp.cs.Scoped()()
	return tp.name
}

func (tp *ThreadProfile) setName(name string) {
	defer tp.cs.Scoped()()
	tp.name = name
}

func (tp *ThreadProfile) State() ProfileState {
	defer tp.cs.Scoped()()
	return tp.state
}

// SampleCount is the number of pushes not yet matched by a pop.
func (tp *ThreadProfile) SampleCount() int {
	defer tp.cs.Scoped()()
	return tp.sampleCount
}

// FrameCount is the number of frames saved since the profile was created.
func (tp *ThreadProfile) FrameCount() uint64 {
	defer tp.cs.Scoped()()
	return tp.frameCount
}

// PreviousFrame returns the most recently completed frame, nil if none.
func (tp *ThreadProfile) PreviousFrame() *Frame {
	defer tp.cs.Scoped()()
	f, err := tp.history.Back()
	if err != nil {
		return nil
	}
	return f
}

// History returns the saved frames, oldest first.
func (tp *ThreadProfile) History() []*Frame {
	defer tp.cs.Scoped()()
	out := make([]*Frame, tp.history.Len())
	for i := range out {
		out[i] = tp.history.Get(i)
	}
	return out
}

// Pause stops recording new scopes. Scopes already open keep being closed so
// the tree in flight is saved complete.
func (tp *ThreadProfile) Pause() {
	defer tp.cs.Scoped()()
	tp.state = PROFILE_STATE_PAUSING
}

// Resume restarts recording at the next scope boundary.
func (tp *ThreadProfile) Resume() {
	defer tp.cs.Scoped()()
	switch tp.state {
	case PROFILE_STATE_PAUSING, PROFILE_STATE_STEPPING:
		tp.state = PROFILE_STATE_RESUMING
	case PROFILE_STATE_RUNNING_SINGLE_FRAME:
		tp.state = PROFILE_STATE_RUNNING
		return
	default:
		return
	}
	if tp.sampleCount == 0 {
		tp.atBoundary()
	}
}

// Step records exactly one more frame, starting at the next scope boundary.
// Only valid while paused.
func (tp *ThreadProfile) Step() {
	defer tp.cs.Scoped()()
	if tp.state != PROFILE_STATE_PAUSING {
		return
	}
	tp.state = PROFILE_STATE_STEPPING
	if tp.sampleCount == 0 {
		tp.atBoundary()
	}
}

func (tp *ThreadProfile) atBoundary() {
	switch tp.state {
	case PROFILE_STATE_RESUMING:
		tp.state = PROFILE_STATE_RUNNING
	case PROFILE_STATE_STEPPING:
		tp.state = PROFILE_STATE_RUNNING_SINGLE_FRAME
	}
}

func (tp *ThreadProfile) recording() bool {
	return tp.state == PROFILE_STATE_RUNNING || tp.state == PROFILE_STATE_RUNNING_SINGLE_FRAME
}

func (tp *ThreadProfile) push(tag string, counter int64) {
	defer tp.cs.Scoped()()
	tp.sampleCount++
	if !tp.recording() {
		return
	}
	tp.active = tp.arena.open(tag, counter, tp.active)
	tp.depth++
}

func (tp *ThreadProfile) pop(counter int64) {
	defer tp.cs.Scoped()()
	core.Assert(tp.sampleCount > 0, "profiler pop without a matching push on thread '%s'", tp.name)
	tp.sampleCount--
	if tp.depth > tp.sampleCount {
		tp.closeActive(counter)
	}
	if tp.sampleCount == 0 {
		core.Assert(tp.depth == 0, "profiler scopes left open on thread '%s'", tp.name)
		tp.atBoundary()
	}
}

func (tp *ThreadProfile) closeActive(counter int64) {
	core.Assert(tp.active != NO_NODE, "profiler closing a scope with no active node")
	n := &tp.arena.nodes[tp.active]
	n.End = max(counter, n.Start)
	n.Closed = true
	tp.depth--
	if n.Parent != NO_NODE {
		tp.active = n.Parent
		return
	}
	core.Assert(tp.active == 0, "profiler root node is not the first node of the arena")
	tp.active = NO_NODE
	tp.save()
}

// save moves the closed tree out of the arena into the history ring.
func (tp *ThreadProfile) save() {
	frame := &Frame{
		ID:         uuid.New(),
		ThreadID:   tp.threadID,
		ThreadName: tp.name,
		Number:     tp.frameCount,
		Nodes:      slices.Clone(tp.arena.nodes),
	}
	tp.arena.release()
	tp.frameCount++

	if tp.history.IsFull() {
		_, _ = tp.history.Dequeue()
	}
	_ = tp.history.Enqueue(frame)

	if tp.state == PROFILE_STATE_RUNNING_SINGLE_FRAME {
		tp.state = PROFILE_STATE_PAUSING
	}
}

func (tp *ThreadProfile) trackAlloc(size uint64) {
	defer tp.cs.Scoped()()
	if tp.active == NO_NODE {
		return
	}
	n := &tp.arena.nodes[tp.active]
	n.Allocs++
	n.AllocBytes += size
}

func (tp *ThreadProfile) trackFree(size uint64) {
	defer tp.cs.Scoped()()
	if tp.active == NO_NODE {
		return
	}
	n := &tp.arena.nodes[tp.active]
	n.Frees++
	n.FreeBytes += size
}
