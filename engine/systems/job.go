package systems

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/hzdclouds/engine/containers"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/math"
	"github.com/spaghettifunk/hzdclouds/engine/memory"
	"github.com/spaghettifunk/hzdclouds/engine/platform"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
)

var (
	ErrJobSystemShutdown = errors.New("job system already shut down")
	ErrReservedSignal    = errors.New("the generic job signal is owned by the worker threads")
)

const defaultJobTag = "job"

// Job is one unit of deferred work. Jobs are created by a JobSystem, start
// with one reference owned by the caller and one pending dependency standing
// for their own Dispatch.
type Job struct {
	jobType JobType
	work    JobWork
	data    interface{}
	tag     string
	system  *JobSystem

	stage           atomic.Uint32
	numDependencies uint32
	refCount        uint32

	// guards dependents and the transition to JOB_STAGE_FINISHED
	mu         sync.Mutex
	dependents []*Job
}

func (j *Job) Type() JobType {
	return j.jobType
}

func (j *Job) Stage() JobStage {
	return JobStage(j.stage.Load())
}

func (j *Job) Tag() string {
	return j.tag
}

// SetTag names the profiler scope the job runs in. Must be called before Dispatch.
func (j *Job) SetTag(tag string) *Job {
	j.tag = tag
	return j
}

// DependsOn delays j until dep has finished. Must be called before j is
// dispatched. Depending on a finished job is a no-op.
func (j *Job) DependsOn(dep *Job) {
	core.Assert(dep != nil, "job dependency is nil")
	core.Assert(dep != j, "job cannot depend on itself")
	core.Assert(platform.AtomicLoad(&j.numDependencies) > 0, "dependency added to a job that is already enqueued")

	dep.mu.Lock()
	defer dep.mu.Unlock()
	if dep.Stage() == JOB_STAGE_FINISHED {
		return
	}
	// dep's dependents list holds a reference to j until it is notified
	platform.AtomicIncrement(&j.refCount)
	platform.AtomicIncrement(&j.numDependencies)
	dep.dependents = append(dep.dependents, j)
}

// Dispatch resolves one pending dependency. The call that resolves the last
// one puts the job on its queue.
func (j *Job) Dispatch() {
	j.stage.CompareAndSwap(uint32(JOB_STAGE_CREATED), uint32(JOB_STAGE_DISPATCHED))
	j.resolveDependency()
}

// resolveDependency drops one pending dependency and enqueues the job when
// none is left. Finished dependencies resolve their own entry, Dispatch
// resolves the one held for the owner.
func (j *Job) resolveDependency() {
	platform.AtomicIncrement(&j.refCount)
	remaining := platform.AtomicDecrement(&j.numDependencies)
	core.Assert(remaining != ^uint32(0), "job dispatched more often than it has dependencies")
	if remaining != 0 {
		j.Release()
		return
	}
	// the dispatch reference now belongs to the queue until the job finishes
	j.system.enqueue(j)
}

func (j *Job) onDependencyFinished() {
	j.resolveDependency()
}

// Release drops one reference. The job goes back to the allocator when the
// last one is gone and must not be touched by the caller afterwards.
func (j *Job) Release() {
	js := j.system
	remaining := platform.AtomicDecrement(&j.refCount)
	core.Assert(remaining != ^uint32(0), "job released more often than it was referenced")
	if remaining == 0 {
		js.jobs.Delete(j)
	}
}

// DispatchAndRelease dispatches the job and gives up the caller's reference.
func (j *Job) DispatchAndRelease() {
	j.Dispatch()
	j.Release()
}

// Wait spins until the job has finished. The caller must hold a reference.
// Waiting on a MAIN or RENDER job from the thread that services it never returns.
func (j *Job) Wait() {
	for j.Stage() != JOB_STAGE_FINISHED {
		platform.Yield()
	}
}

// WaitAndRelease waits for the job, then releases the caller's reference.
func (j *Job) WaitAndRelease() {
	j.Wait()
	j.Release()
}

// JobSystemConfig configures NewJobSystem. A nil config starts one worker per
// processor but one.
type JobSystemConfig struct {
	// Workers is the number of generic worker threads. Negative values mean
	// "processor count minus this many", floored at 1. Zero starts no
	// workers: generic jobs then only run when a consumer is stepped.
	Workers int
	// Profiler, when set, gets a scope per executed job and the job memory stats.
	Profiler *profiler.Profiler
}

// JobStats is a snapshot of the job allocator and queues.
type JobStats struct {
	HeapAllocations uint64
	LiveJobs        uint64
	FreeBlocks      int
	Pending         [JOB_TYPE_COUNT]int
}

type JobSystem struct {
	queues   [JOB_TYPE_COUNT]*containers.ThreadSafeQueue[*Job]
	signals  [JOB_TYPE_COUNT]atomic.Pointer[platform.Signal]
	workers  []*platform.Thread
	running  atomic.Bool
	jobs     *memory.BlockAllocator[Job]
	profiler *profiler.Profiler
	generic  *JobConsumer
}

func workerCount(requested int) int {
	if requested >= 0 {
		return requested
	}
	return math.AtLeast(platform.ProcessorCount()+requested, 1)
}

// NewJobSystem creates the queues and starts the generic workers.
func NewJobSystem(config *JobSystemConfig) (*JobSystem, error) {
	cfg := JobSystemConfig{Workers: -1}
	if config != nil {
		cfg = *config
	}

	js := &JobSystem{
		jobs:     memory.NewBlockAllocator[Job](0),
		profiler: cfg.Profiler,
		generic:  NewJobConsumer(JOB_TYPE_GENERIC),
	}
	for i := range js.queues {
		js.queues[i] = containers.NewThreadSafeQueue[*Job]()
	}
	js.signals[JOB_TYPE_GENERIC].Store(platform.NewSignal())
	if cfg.Profiler != nil {
		js.jobs.SetTracker(cfg.Profiler)
	}
	js.running.Store(true)

	n := workerCount(cfg.Workers)
	for i := 0; i < n; i++ {
		t, err := platform.NewThread(fmt.Sprintf("Job Worker %d", i), js.workerLoop, i)
		if err != nil {
			_ = js.Shutdown()
			return nil, err
		}
		js.workers = append(js.workers, t)
	}
	core.LogInfo("job system started with %d generic workers", n)
	return js, nil
}

func (js *JobSystem) workerLoop(arg interface{}) {
	js.profiler.RegisterThread(fmt.Sprintf("Job Worker %d", arg.(int)))

	signal := js.signals[JOB_TYPE_GENERIC].Load()
	queue := js.queues[JOB_TYPE_GENERIC]
	ready := func() bool {
		return !js.running.Load() || !queue.Empty()
	}
	for js.running.Load() {
		signal.WaitUnless(ready)
		js.ConsumeAll(js.generic)
	}
	// one last pass for jobs dispatched right before shutdown
	js.ConsumeAll(js.generic)
}

// Shutdown stops and joins the workers. Jobs dispatched while shutting down
// may never run.
func (js *JobSystem) Shutdown() error {
	if !js.running.CompareAndSwap(true, false) {
		return ErrJobSystemShutdown
	}
	for i := range js.signals {
		if s := js.signals[i].Load(); s != nil {
			s.SignalAll()
		}
	}
	for _, w := range js.workers {
		if err := w.Join(); err != nil {
			return err
		}
	}
	core.LogInfo("job system shut down")
	return nil
}

// RegisterSignal makes dispatches of t raise s, so the thread servicing t can
// sleep instead of polling.
func (js *JobSystem) RegisterSignal(t JobType, s *platform.Signal) error {
	core.Assert(t >= 0 && t < JOB_TYPE_COUNT, "invalid job type %d", t)
	if t == JOB_TYPE_GENERIC {
		return ErrReservedSignal
	}
	js.signals[t].Store(s)
	return nil
}

// CreateJob allocates a job of type t running work(job, data).
func (js *JobSystem) CreateJob(t JobType, work JobWork, data interface{}) *Job {
	core.Assert(t >= 0 && t < JOB_TYPE_COUNT, "invalid job type %d", t)
	core.Assert(work != nil, "job work is nil")

	j := js.jobs.New()
	j.jobType = t
	j.work = work
	j.data = data
	j.tag = defaultJobTag
	j.system = js
	j.numDependencies = 1
	j.refCount = 1
	return j
}

// CreateFuncJob wraps a plain function in a job.
func (js *JobSystem) CreateFuncJob(t JobType, fn func()) *Job {
	core.Assert(fn != nil, "job function is nil")
	return js.CreateJob(t, func(*Job, interface{}) { fn() }, nil)
}

// CreateJobWith binds arg to fn and wraps the call in a job.
func CreateJobWith[T any](js *JobSystem, t JobType, fn func(T), arg T) *Job {
	core.Assert(fn != nil, "job function is nil")
	return js.CreateJob(t, func(*Job, interface{}) { fn(arg) }, nil)
}

func (js *JobSystem) enqueue(j *Job) {
	// j may finish and be recycled as soon as it is pushed
	t := j.jobType
	j.stage.Store(uint32(JOB_STAGE_ENQUEUED))
	js.queues[t].Push(j)
	if s := js.signals[t].Load(); s != nil {
		s.SignalAll()
	}
}

func (js *JobSystem) execute(j *Job) {
	j.stage.Store(uint32(JOB_STAGE_RUNNING))
	end := js.profiler.Scope(j.tag)
	j.work(j, j.data)
	end()

	j.mu.Lock()
	j.stage.Store(uint32(JOB_STAGE_FINISHED))
	dependents := j.dependents
	j.dependents = nil
	j.mu.Unlock()

	for _, d := range dependents {
		d.onDependencyFinished()
		d.Release()
	}
	j.Release()
}

// ConsumeOne runs the first available job of c's types, trying the types in
// order. It reports whether a job ran.
func (js *JobSystem) ConsumeOne(c *JobConsumer) bool {
	for _, t := range c.types {
		if j, ok := js.queues[t].Pop(); ok {
			js.execute(j)
			return true
		}
	}
	return false
}

// ConsumeAll runs jobs until every queue of c is empty and returns how many ran.
func (js *JobSystem) ConsumeAll(c *JobConsumer) int {
	n := 0
	for js.ConsumeOne(c) {
		n++
	}
	return n
}

// ConsumeFor runs jobs until c's queues are empty or budget has elapsed. The
// budget is checked after each job, a long job overruns it.
func (js *JobSystem) ConsumeFor(c *JobConsumer, budget time.Duration) int {
	start := time.Now()
	n := 0
	for js.ConsumeOne(c) {
		n++
		if time.Since(start) >= budget {
			break
		}
	}
	return n
}

// Pending is the number of jobs of type t waiting in their queue.
func (js *JobSystem) Pending(t JobType) int {
	return js.queues[t].Len()
}

func (js *JobSystem) Workers() int {
	return len(js.workers)
}

func (js *JobSystem) Stats() JobStats {
	s := JobStats{
		HeapAllocations: js.jobs.HeapAllocations(),
		LiveJobs:        js.jobs.Live(),
		FreeBlocks:      js.jobs.FreeBlocks(),
	}
	for i := range js.queues {
		s.Pending[i] = js.queues[i].Len()
	}
	return s
}
