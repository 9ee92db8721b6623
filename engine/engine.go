package engine

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/hzdclouds/engine/config"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/platform"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
	"github.com/spaghettifunk/hzdclouds/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has been shut down and cannot be restarted
	EngineStageShutdown
)

var ErrInvalidStage = errors.New("engine is not in the right stage for this operation")

// the render thread re-checks its queue at least this often
const renderPollInterval = 100 * time.Millisecond

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	config        *config.Config
	watcher       *config.Watcher
	events        *core.EventSystem
	systemManager *systems.SystemManager
	mainConsumer  *systems.JobConsumer

	renderSignal *platform.Signal
	renderThread *platform.Thread
	renderStop   atomic.Bool

	isRunning   atomic.Bool
	stepBudget  atomic.Int64
	clock       *core.Clock
	metrics     *core.FrameMetrics
	lastTime    float64
	frameNumber uint64
}

// New creates an engine for g. cfg may be nil, the defaults are used then.
func New(g *Game, cfg *config.Config) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("engine needs a game with an application config")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEventSystem(),
		mainConsumer: systems.NewJobConsumer(systems.JOB_TYPE_MAIN),
		renderSignal: platform.NewSignal(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}
	e.stepBudget.Store(int64(cfg.StepBudget()))
	return e, nil
}

// Initialize brings the systems up: profiler, job system, render thread and
// config watcher, in that order. Then the game is initialized.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return ErrInvalidStage
	}
	e.currentStage = EngineStageInitializing

	if err := core.SetLogLevel(e.config.Log.Level); err != nil {
		core.LogWarn("ignoring log level %q: %s", e.config.Log.Level, err)
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e, e.onEvent)

	sm, err := systems.NewSystemManager(&systems.SystemManagerConfig{
		Profiler:  e.config.ProfilerSettings(),
		JobSystem: &systems.JobSystemConfig{Workers: e.config.Jobs.Workers},
	})
	if err != nil {
		return err
	}
	e.systemManager = sm
	e.gameInstance.SystemManager = sm

	if err := sm.JobSystem.RegisterSignal(systems.JOB_TYPE_RENDER, e.renderSignal); err != nil {
		return err
	}
	t, err := platform.NewThread("Render", e.renderLoop, nil)
	if err != nil {
		return err
	}
	e.renderThread = t

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		w, err := config.NewWatcher(path, e.config, func(cfg *config.Config) {
			e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, core.EventContext{Data: cfg})
		})
		if err != nil {
			return err
		}
		e.watcher = w
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.isRunning.Store(true)
	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized", e.gameInstance.ApplicationConfig.Name)
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return ErrInvalidStage
	}
	e.currentStage = EngineStageRunning

	prof := e.systemManager.Profiler
	js := e.systemManager.JobSystem
	prof.RegisterThread("Main")

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	appConfig := e.gameInstance.ApplicationConfig
	var targetFrameSeconds float64
	if appConfig.TargetFPS > 0 {
		targetFrameSeconds = 1.0 / float64(appConfig.TargetFPS)
	}

	for e.isRunning.Load() {
		endFrame := prof.Scope("frame")

		// Update clock and get delta time.
		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var delta float64 = (currentTime - e.lastTime)
		var frameStartTime float64 = platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			endUpdate := prof.Scope("update")
			err := e.gameInstance.FnUpdate(delta)
			endUpdate()
			if err != nil {
				endFrame()
				core.LogError("Game update failed, shutting down.")
				e.isRunning.Store(false)
				return err
			}
		}

		endJobs := prof.Scope("main jobs")
		js.ConsumeFor(e.mainConsumer, time.Duration(e.stepBudget.Load()))
		endJobs()

		// Call the game's render routine.
		if e.gameInstance.FnRender != nil {
			endRender := prof.Scope("render")
			err := e.gameInstance.FnRender(delta)
			endRender()
			if err != nil {
				endFrame()
				core.LogError("Game render failed, shutting down.")
				e.isRunning.Store(false)
				return err
			}
		}

		// Figure out how long the frame took and, if below the target, give
		// the rest back to the OS.
		var frameElapsedTime float64 = platform.GetAbsoluteTime() - frameStartTime
		if remainingSeconds := targetFrameSeconds - frameElapsedTime; remainingSeconds > 0 {
			platform.Sleep(remainingSeconds*1000 - 1)
		}
		e.metrics.Update(platform.GetAbsoluteTime() - frameStartTime)
		endFrame()

		e.lastTime = currentTime
		e.frameNumber++
		if appConfig.MaxFrames > 0 && e.frameNumber >= appConfig.MaxFrames {
			e.isRunning.Store(false)
		}
	}
	e.clock.Stop()

	fps, frameTime := e.metrics.Frame()
	core.LogInfo("main loop stopped after %d frames (%.1f fps, %.3f ms)", e.frameNumber, fps, frameTime)
	return nil
}

// Stop asks the main loop to exit at the end of the current frame. It may be
// called from any thread.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown tears the engine down: job workers, render thread, profiler, then
// the config watcher.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageUninitialized || e.currentStage >= EngineStageShuttingDown {
		return ErrInvalidStage
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err)
		}
	}

	// generic workers go first: their last drain may still feed render and main jobs
	if e.systemManager != nil {
		if err := e.systemManager.JobSystem.Shutdown(); err != nil {
			return err
		}
	}
	if e.renderThread != nil {
		e.renderStop.Store(true)
		e.renderSignal.SignalAll()
		if err := e.renderThread.Join(); err != nil {
			return err
		}
	}
	if e.systemManager != nil {
		// main jobs never picked up by the loop still hold their references
		e.systemManager.JobSystem.ConsumeAll(e.mainConsumer)
		if err := e.systemManager.Shutdown(); err != nil {
			return err
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			return err
		}
	}
	e.events.Shutdown()

	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down")
	return nil
}

func (e *Engine) renderLoop(interface{}) {
	js := e.systemManager.JobSystem
	e.systemManager.Profiler.RegisterThread("Render")

	consumer := systems.NewJobConsumer(systems.JOB_TYPE_RENDER)
	ready := func() bool {
		return e.renderStop.Load() || js.Pending(systems.JOB_TYPE_RENDER) > 0
	}
	for !e.renderStop.Load() {
		e.renderSignal.WaitForUnless(ready, renderPollInterval)
		js.ConsumeAll(consumer)
	}
	js.ConsumeAll(consumer)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	case core.EVENT_CODE_CONFIG_RELOADED:
		cfg, ok := data.Data.(*config.Config)
		if !ok {
			core.LogError("wrong event associated with the event type `%d`", code)
			return false
		}
		e.applyConfig(cfg)
	}
	return false
}

// applyConfig applies the settings that can change while running. Worker count
// and profiler history only take effect on restart.
func (e *Engine) applyConfig(cfg *config.Config) {
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("ignoring log level %q: %s", cfg.Log.Level, err)
	}
	e.stepBudget.Store(int64(cfg.StepBudget()))

	if prof := e.systemManager.Profiler; prof != nil && prof.Paused() != cfg.Profiler.Paused {
		if cfg.Profiler.Paused {
			prof.Pause()
		} else {
			prof.Resume()
		}
		e.events.Fire(core.EVENT_CODE_PROFILER_TOGGLED, e, core.EventContext{Data: cfg.Profiler.Paused})
	}
	if cfg.Jobs.Workers != e.config.Jobs.Workers {
		core.LogWarn("job worker count changes take effect on restart")
	}
}

// WriteProfile writes the report of the last completed frame of every
// profiled thread.
func (e *Engine) WriteProfile(w io.Writer, mode profiler.SortMode) error {
	if e.systemManager == nil || e.systemManager.Profiler == nil {
		return nil
	}
	prof := e.systemManager.Profiler
	prof.Flush()
	for _, tp := range prof.ThreadProfiles() {
		f := tp.PreviousFrame()
		if f == nil {
			continue
		}
		r := profiler.NewReport(f, mode)
		if err := r.WriteTree(w); err != nil {
			return err
		}
		if err := r.WriteFlat(w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Metrics() *core.FrameMetrics {
	return e.metrics
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) FrameNumber() uint64 {
	return e.frameNumber
}

// StepBudget is the time the main loop currently spends on MAIN jobs per frame.
func (e *Engine) StepBudget() time.Duration {
	return time.Duration(e.stepBudget.Load())
}
