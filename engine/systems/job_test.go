package systems

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/hzdclouds/engine/platform"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobSystem(t *testing.T, workers int) *JobSystem {
	t.Helper()
	js, err := NewJobSystem(&JobSystemConfig{Workers: workers})
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Shutdown() })
	return js
}

func TestWorkerCount(t *testing.T) {
	cpus := platform.ProcessorCount()
	assert.Equal(t, 0, workerCount(0))
	assert.Equal(t, 3, workerCount(3))
	assert.Equal(t, max(cpus-1, 1), workerCount(-1))
	assert.Equal(t, 1, workerCount(-cpus-10))
}

func TestJobRunsOnceBeforeWaitReturns(t *testing.T) {
	js := newTestJobSystem(t, 2)

	var runs atomic.Int32
	a := js.CreateFuncJob(JOB_TYPE_GENERIC, func() { runs.Add(1) })
	assert.Equal(t, JOB_STAGE_CREATED, a.Stage())
	a.Dispatch()
	a.Wait()
	assert.Equal(t, JOB_STAGE_FINISHED, a.Stage())
	a.Release()

	assert.Equal(t, int32(1), runs.Load())
}

func TestJobDependencyObservesEffects(t *testing.T) {
	for _, name := range []string{"dependency first", "dependent first"} {
		t.Run(name, func(t *testing.T) {
			js := newTestJobSystem(t, 4)

			counter := 0
			observed := -1
			a := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {
				time.Sleep(5 * time.Millisecond)
				counter++
			})
			b := js.CreateFuncJob(JOB_TYPE_GENERIC, func() { observed = counter })
			b.DependsOn(a)

			if name == "dependency first" {
				a.Dispatch()
				b.Dispatch()
			} else {
				b.Dispatch()
				a.Dispatch()
			}
			a.Release()
			b.WaitAndRelease()

			assert.Equal(t, 1, observed)
		})
	}
}

func TestJobDependencyChainOrdering(t *testing.T) {
	js := newTestJobSystem(t, 4)

	const n = 32
	var mu sync.Mutex
	var order []int
	jobs := make([]*Job, n)
	for i := 0; i < n; i++ {
		jobs[i] = CreateJobWith(js, JOB_TYPE_GENERIC, func(i int) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, i)
		if i > 0 {
			jobs[i].DependsOn(jobs[i-1])
		}
	}
	// dispatch back to front so nothing can start until the head runs
	for i := n - 1; i > 0; i-- {
		jobs[i].Dispatch()
	}
	last := jobs[n-1]
	for i := 0; i < n-1; i++ {
		defer jobs[i].Release()
	}
	jobs[0].Dispatch()
	last.WaitAndRelease()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i := range order {
		assert.Equal(t, i, order[i])
	}
}

func TestJobDependsOnFinishedJob(t *testing.T) {
	js := newTestJobSystem(t, 0)
	consumer := NewJobConsumer(JOB_TYPE_GENERIC)

	a := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	a.Dispatch()
	require.Equal(t, 1, js.ConsumeAll(consumer))

	ran := false
	b := js.CreateFuncJob(JOB_TYPE_GENERIC, func() { ran = true })
	b.DependsOn(a)
	b.DispatchAndRelease()
	a.Release()

	assert.Equal(t, JOB_STAGE_ENQUEUED, b.Stage())
	js.ConsumeAll(consumer)
	assert.True(t, ran)
}

func TestJobStaysCreatedUntilOwnerDispatch(t *testing.T) {
	js := newTestJobSystem(t, 0)
	consumer := NewJobConsumer(JOB_TYPE_GENERIC)

	ran := false
	a := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	b := js.CreateFuncJob(JOB_TYPE_GENERIC, func() { ran = true })
	b.DependsOn(a)
	a.DispatchAndRelease()
	require.Equal(t, 1, js.ConsumeAll(consumer))

	assert.Equal(t, JOB_STAGE_CREATED, b.Stage(), "a finished dependency does not dispatch its dependent")
	assert.Zero(t, js.Pending(JOB_TYPE_GENERIC))
	assert.False(t, ran)

	b.Dispatch()
	assert.Equal(t, JOB_STAGE_ENQUEUED, b.Stage())
	js.ConsumeAll(consumer)
	b.WaitAndRelease()
	assert.True(t, ran)
	assert.Zero(t, js.Stats().LiveJobs)
}

func TestJobRunsExactlyOnceWithManyDependencies(t *testing.T) {
	js := newTestJobSystem(t, 0)
	consumer := NewJobConsumer(JOB_TYPE_GENERIC)

	runs := 0
	target := js.CreateFuncJob(JOB_TYPE_GENERIC, func() { runs++ })
	deps := make([]*Job, 3)
	for i := range deps {
		deps[i] = js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
		target.DependsOn(deps[i])
	}
	target.Dispatch()
	assert.Equal(t, JOB_STAGE_DISPATCHED, target.Stage())
	assert.Zero(t, js.Pending(JOB_TYPE_GENERIC))

	for _, d := range deps {
		d.DispatchAndRelease()
	}
	js.ConsumeAll(consumer)
	target.WaitAndRelease()

	assert.Equal(t, 1, runs)
	assert.Zero(t, js.Stats().LiveJobs)
}

func TestJobOverDispatchPanics(t *testing.T) {
	js := newTestJobSystem(t, 0)
	j := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	j.Dispatch()
	assert.Panics(t, func() { j.Dispatch() })
}

func TestJobMemoryReuse(t *testing.T) {
	js := newTestJobSystem(t, 0)
	consumer := NewJobConsumer(JOB_TYPE_GENERIC)

	a := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	a.Dispatch()
	js.ConsumeAll(consumer)
	require.Equal(t, JOB_STAGE_FINISHED, a.Stage())

	// a is still referenced, its block cannot be handed out again
	b := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	assert.NotSame(t, a, b)
	assert.Equal(t, uint64(2), js.Stats().LiveJobs)

	a.Release()
	c := js.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	assert.Same(t, a, c)
	assert.Equal(t, JOB_STAGE_CREATED, c.Stage())
	assert.Equal(t, defaultJobTag, c.Tag())

	b.Release()
	c.Release()
	stats := js.Stats()
	assert.Zero(t, stats.LiveJobs)
	assert.Equal(t, uint64(2), stats.HeapAllocations)
	assert.Equal(t, 2, stats.FreeBlocks)
}

func TestJobQueueFIFO(t *testing.T) {
	js := newTestJobSystem(t, 0)

	const n = 100
	var order []int
	for i := 0; i < n; i++ {
		CreateJobWith(js, JOB_TYPE_GENERIC, func(i int) { order = append(order, i) }, i).DispatchAndRelease()
	}
	assert.Equal(t, n, js.Pending(JOB_TYPE_GENERIC))

	assert.Equal(t, n, js.ConsumeAll(NewJobConsumer(JOB_TYPE_GENERIC)))
	require.Len(t, order, n)
	for i := range order {
		assert.Equal(t, i, order[i])
	}
}

func TestJobConsumerPriority(t *testing.T) {
	js := newTestJobSystem(t, 0)
	consumer := NewJobConsumer(JOB_TYPE_MAIN, JOB_TYPE_GENERIC)
	assert.Equal(t, []JobType{JOB_TYPE_MAIN, JOB_TYPE_GENERIC}, consumer.Types())

	var order []string
	js.CreateFuncJob(JOB_TYPE_GENERIC, func() { order = append(order, "generic") }).DispatchAndRelease()
	js.CreateFuncJob(JOB_TYPE_MAIN, func() { order = append(order, "main") }).DispatchAndRelease()
	js.CreateFuncJob(JOB_TYPE_RENDER, func() { order = append(order, "render") }).DispatchAndRelease()

	assert.True(t, js.ConsumeOne(consumer))
	assert.Equal(t, []string{"main"}, order)
	assert.Equal(t, 1, js.ConsumeAll(consumer))
	assert.Equal(t, []string{"main", "generic"}, order)
	assert.False(t, js.ConsumeOne(consumer))

	// render jobs belong to a consumer that was never stepped
	assert.Equal(t, 1, js.Pending(JOB_TYPE_RENDER))
	js.ConsumeAll(NewJobConsumer(JOB_TYPE_RENDER))
}

func TestJobConsumeForBudget(t *testing.T) {
	js := newTestJobSystem(t, 0)
	consumer := NewJobConsumer(JOB_TYPE_MAIN)

	for i := 0; i < 10; i++ {
		js.CreateFuncJob(JOB_TYPE_MAIN, func() { time.Sleep(2 * time.Millisecond) }).DispatchAndRelease()
	}
	// at least one job runs even with no budget left
	assert.Equal(t, 1, js.ConsumeFor(consumer, 0))
	assert.Equal(t, 1, js.ConsumeFor(consumer, time.Millisecond))
	assert.Equal(t, 8, js.ConsumeFor(consumer, time.Hour))
	assert.Zero(t, js.ConsumeFor(consumer, time.Hour))
}

func TestJobRegisterSignal(t *testing.T) {
	js := newTestJobSystem(t, 0)
	assert.ErrorIs(t, js.RegisterSignal(JOB_TYPE_GENERIC, platform.NewSignal()), ErrReservedSignal)

	s := platform.NewSignal()
	require.NoError(t, js.RegisterSignal(JOB_TYPE_RENDER, s))
	assert.False(t, s.WaitFor(time.Millisecond))

	js.CreateFuncJob(JOB_TYPE_RENDER, func() {}).DispatchAndRelease()
	assert.True(t, s.WaitFor(time.Second))
	assert.Equal(t, 1, js.ConsumeAll(NewJobConsumer(JOB_TYPE_RENDER)))
}

func TestJobRenderThread(t *testing.T) {
	js := newTestJobSystem(t, 1)
	s := platform.NewSignal()
	require.NoError(t, js.RegisterSignal(JOB_TYPE_RENDER, s))

	var stop atomic.Bool
	th, err := platform.NewThread("Render", func(interface{}) {
		consumer := NewJobConsumer(JOB_TYPE_RENDER)
		for !stop.Load() {
			s.WaitUnless(func() bool { return stop.Load() || js.Pending(JOB_TYPE_RENDER) > 0 })
			js.ConsumeAll(consumer)
		}
	}, nil)
	require.NoError(t, err)

	// a generic job feeding a render job
	var ranOn platform.ThreadID
	upload := js.CreateFuncJob(JOB_TYPE_RENDER, func() { ranOn = platform.CurrentThreadID() })
	build := js.CreateFuncJob(JOB_TYPE_GENERIC, func() { time.Sleep(time.Millisecond) })
	upload.DependsOn(build)
	upload.Dispatch()
	build.DispatchAndRelease()
	upload.WaitAndRelease()

	assert.Equal(t, th.ID(), ranOn)

	stop.Store(true)
	s.SignalAll()
	require.NoError(t, th.Join())
}

func TestJobSystemShutdownDrains(t *testing.T) {
	js, err := NewJobSystem(&JobSystemConfig{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, js.Workers())

	var runs atomic.Int32
	for i := 0; i < 50; i++ {
		js.CreateFuncJob(JOB_TYPE_GENERIC, func() { runs.Add(1) }).DispatchAndRelease()
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(50), runs.Load())
	assert.Zero(t, js.Stats().Pending[JOB_TYPE_GENERIC])
	assert.ErrorIs(t, js.Shutdown(), ErrJobSystemShutdown)
}

func TestJobSystemProfilerScopes(t *testing.T) {
	if !profiler.Enabled {
		t.Skip("profiler compiled out")
	}
	prof, err := profiler.New(nil)
	require.NoError(t, err)
	defer func() { _ = prof.Shutdown() }()

	js, err := NewJobSystem(&JobSystemConfig{Workers: 0, Profiler: prof})
	require.NoError(t, err)
	defer func() { _ = js.Shutdown() }()

	js.CreateFuncJob(JOB_TYPE_MAIN, func() {}).SetTag("tile").DispatchAndRelease()
	prof.RegisterThread("Main")
	js.ConsumeAll(NewJobConsumer(JOB_TYPE_MAIN))
	prof.Flush()

	tp := prof.ThreadProfile(platform.CurrentThreadID())
	require.NotNil(t, tp)
	f := tp.PreviousFrame()
	require.NotNil(t, f)
	assert.Equal(t, "tile", f.Root().Tag)
	assert.True(t, f.Closed())
}

func TestSystemManager(t *testing.T) {
	sm, err := NewSystemManager(&SystemManagerConfig{
		Profiler:  &profiler.Config{HistorySize: 4},
		JobSystem: &JobSystemConfig{Workers: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sm.JobSystem.Workers())
	if profiler.Enabled {
		assert.NotNil(t, sm.Profiler)
	}

	j := sm.JobSystem.CreateFuncJob(JOB_TYPE_GENERIC, func() {})
	j.Dispatch()
	j.WaitAndRelease()
	require.NoError(t, sm.Shutdown())
	assert.ErrorIs(t, sm.JobSystem.Shutdown(), ErrJobSystemShutdown)
	// the job system may be stopped ahead of the manager
	assert.NoError(t, (&SystemManager{JobSystem: sm.JobSystem}).Shutdown())
}
