// Package profiler records timed scopes and memory events per thread. Every
// instrumented thread pushes events to one queue; a single profiler thread
// folds them into per thread call trees and keeps a history of completed
// frames for reporting.
package profiler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/hzdclouds/engine/containers"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/platform"
)

// PROFILER_FRAME_HISTORY is the default number of frames kept per thread.
const PROFILER_FRAME_HISTORY int = 64

var ErrProfilerShutdown = errors.New("profiler already shut down")

type MemoryTracking int

const (
	// Allocation events are dropped.
	MEMORY_TRACKING_NONE MemoryTracking = iota
	// Allocations are counted on the open scope.
	MEMORY_TRACKING_BASIC
	// Like basic, and every event is logged.
	MEMORY_TRACKING_VERBOSE
)

// ParseMemoryTracking maps "none", "basic" and "verbose" to their mode.
func ParseMemoryTracking(s string) (MemoryTracking, error) {
	switch s {
	case "", "none":
		return MEMORY_TRACKING_NONE, nil
	case "basic":
		return MEMORY_TRACKING_BASIC, nil
	case "verbose":
		return MEMORY_TRACKING_VERBOSE, nil
	}
	return MEMORY_TRACKING_NONE, errors.New("unknown memory tracking mode: " + s)
}

type Config struct {
	// HistorySize is the number of frames kept per thread. Defaults to PROFILER_FRAME_HISTORY.
	HistorySize int
	// MemoryTracking selects how alloc/free events are handled.
	MemoryTracking MemoryTracking
	// StartPaused creates every thread profile paused.
	StartPaused bool
	// PollInterval bounds how long the profiler thread sleeps without being
	// signaled. Defaults to 100ms.
	PollInterval time.Duration
}

type EventType uint8

const (
	EVENT_PUSH EventType = iota
	EVENT_POP
	EVENT_ALLOC
	EVENT_FREE
	eventFlush
)

type event struct {
	kind    EventType
	thread  platform.ThreadID
	tag     string
	size    uint64
	counter int64
	done    chan struct{}
}

type Profiler struct {
	config  Config
	epoch   time.Time
	events  *containers.ThreadSafeQueue[event]
	signal  *platform.Signal
	thread  *platform.Thread
	running atomic.Bool

	mu       sync.RWMutex
	profiles map[platform.ThreadID]*ThreadProfile
	order    []*ThreadProfile
	paused   bool
}

// New starts the profiler thread. config may be nil.
func New(config *Config) (*Profiler, error) {
	cfg := Config{
		HistorySize:    PROFILER_FRAME_HISTORY,
		MemoryTracking: MEMORY_TRACKING_BASIC,
		PollInterval:   100 * time.Millisecond,
	}
	if config != nil {
		if config.HistorySize > 0 {
			cfg.HistorySize = config.HistorySize
		}
		if config.PollInterval > 0 {
			cfg.PollInterval = config.PollInterval
		}
		cfg.MemoryTracking = config.MemoryTracking
		cfg.StartPaused = config.StartPaused
	}

	p := &Profiler{
		config:   cfg,
		epoch:    time.Now(),
		events:   containers.NewThreadSafeQueue[event](),
		signal:   platform.NewSignal(),
		profiles: make(map[platform.ThreadID]*ThreadProfile),
		paused:   cfg.StartPaused,
	}
	p.running.Store(true)

	t, err := platform.NewThread("Profiler", p.run, nil)
	if err != nil {
		return nil, err
	}
	p.thread = t
	core.LogInfo("profiler started (history=%d, memory tracking=%d)", cfg.HistorySize, cfg.MemoryTracking)
	return p, nil
}

// Shutdown folds the events still queued and stops the profiler thread.
func (p *Profiler) Shutdown() error {
	if p == nil {
		return nil
	}
	if !p.running.CompareAndSwap(true, false) {
		return ErrProfilerShutdown
	}
	p.signal.SignalAll()
	return p.thread.Join()
}

func (p *Profiler) run(interface{}) {
	for p.running.Load() {
		p.drain()
		p.signal.WaitFor(p.config.PollInterval)
	}
	p.drain()
}

func (p *Profiler) drain() {
	for {
		ev, ok := p.events.Pop()
		if !ok {
			return
		}
		p.process(ev)
	}
}

func (p *Profiler) process(ev event) {
	if ev.kind == eventFlush {
		close(ev.done)
		return
	}

	tp := p.profile(ev.thread)
	switch ev.kind {
	case EVENT_PUSH:
		tp.push(ev.tag, ev.counter)
	case EVENT_POP:
		tp.pop(ev.counter)
	case EVENT_ALLOC:
		if p.config.MemoryTracking == MEMORY_TRACKING_VERBOSE {
			core.LogDebug("alloc %d bytes on '%s'", ev.size, tp.Name())
		}
		tp.trackAlloc(ev.size)
	case EVENT_FREE:
		if p.config.MemoryTracking == MEMORY_TRACKING_VERBOSE {
			core.LogDebug("free %d bytes on '%s'", ev.size, tp.Name())
		}
		tp.trackFree(ev.size)
	}
}

// profile returns the profile of id, creating it on first use.
func (p *Profiler) profile(id platform.ThreadID) *ThreadProfile {
	p.mu.RLock()
	tp, ok := p.profiles[id]
	p.mu.RUnlock()
	if ok {
		return tp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tp, ok := p.profiles[id]; ok {
		return tp
	}
	state := PROFILE_STATE_RUNNING
	if p.paused {
		state = PROFILE_STATE_PAUSING
	}
	tp = newThreadProfile(id, platform.ThreadName(id), p.config.HistorySize, state)
	p.profiles[id] = tp
	p.order = append(p.order, tp)
	return tp
}

func (p *Profiler) emit(ev event) {
	ev.counter = int64(time.Since(p.epoch))
	p.events.Push(ev)
	p.signal.SignalAll()
}

func (p *Profiler) active() bool {
	return Enabled && p != nil && p.running.Load()
}

// RegisterThread names the calling thread and creates its profile.
func (p *Profiler) RegisterThread(name string) {
	platform.SetThreadName(name)
	if !p.active() {
		return
	}
	p.profile(platform.CurrentThreadID()).setName(name)
}

// Push opens a scope tagged tag on the calling thread.
func (p *Profiler) Push(tag string) {
	if !p.active() {
		return
	}
	p.PushThread(platform.CurrentThreadID(), tag)
}

// Pop closes the innermost scope of the calling thread.
func (p *Profiler) Pop() {
	if !p.active() {
		return
	}
	p.PopThread(platform.CurrentThreadID())
}

func (p *Profiler) PushThread(id platform.ThreadID, tag string) {
	if !p.active() {
		return
	}
	p.emit(event{kind: EVENT_PUSH, thread: id, tag: tag})
}

func (p *Profiler) PopThread(id platform.ThreadID) {
	if !p.active() {
		return
	}
	p.emit(event{kind: EVENT_POP, thread: id})
}

func nop() {}

// Scope opens a scope and returns the function closing it:
//
//	defer prof.Scope("update")()
func (p *Profiler) Scope(tag string) func() {
	if !p.active() {
		return nop
	}
	id := platform.CurrentThreadID()
	p.PushThread(id, tag)
	return func() { p.PopThread(id) }
}

// TrackAlloc records size bytes allocated by the calling thread.
func (p *Profiler) TrackAlloc(size uint64) {
	if !p.active() || p.config.MemoryTracking == MEMORY_TRACKING_NONE {
		return
	}
	p.emit(event{kind: EVENT_ALLOC, thread: platform.CurrentThreadID(), size: size})
}

// TrackFree records size bytes freed by the calling thread.
func (p *Profiler) TrackFree(size uint64) {
	if !p.active() || p.config.MemoryTracking == MEMORY_TRACKING_NONE {
		return
	}
	p.emit(event{kind: EVENT_FREE, thread: platform.CurrentThreadID(), size: size})
}

// Flush blocks until every event queued before the call has been processed.
func (p *Profiler) Flush() {
	if !p.active() {
		return
	}
	done := make(chan struct{})
	p.events.Push(event{kind: eventFlush, done: done})
	p.signal.SignalAll()
	select {
	case <-done:
	case <-p.thread.Done():
	}
}

// ThreadProfile returns the profile of id, nil if the thread never emitted.
func (p *Profiler) ThreadProfile(id platform.ThreadID) *ThreadProfile {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profiles[id]
}

// ThreadProfiles returns every profile in creation order.
func (p *Profiler) ThreadProfiles() []*ThreadProfile {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*ThreadProfile(nil), p.order...)
}

// Pause pauses every thread profile, including the ones created later.
func (p *Profiler) Pause() {
	p.setPaused(true)
	for _, tp := range p.ThreadProfiles() {
		tp.Pause()
	}
}

// Resume resumes every thread profile.
func (p *Profiler) Resume() {
	p.setPaused(false)
	for _, tp := range p.ThreadProfiles() {
		tp.Resume()
	}
}

// Step captures one more frame on every paused thread profile.
func (p *Profiler) Step() {
	for _, tp := range p.ThreadProfiles() {
		tp.Step()
	}
}

func (p *Profiler) Paused() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Profiler) setPaused(paused bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}
