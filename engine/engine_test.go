package engine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/hzdclouds/engine/config"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/platform"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
	"github.com/spaghettifunk/hzdclouds/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGame struct {
	*Game
	updates    int
	mainJobs   atomic.Int32
	renderJobs atomic.Int32
	renderOn   atomic.Uint64
}

func newCountingGame(maxFrames uint64) *countingGame {
	g := &countingGame{
		Game: &Game{
			ApplicationConfig: &ApplicationConfig{
				Name:      "test",
				MaxFrames: maxFrames,
			},
		},
	}
	g.FnUpdate = g.update
	return g
}

func (g *countingGame) update(float64) error {
	g.updates++
	js := g.SystemManager.JobSystem

	js.CreateFuncJob(systems.JOB_TYPE_MAIN, func() { g.mainJobs.Add(1) }).DispatchAndRelease()

	upload := js.CreateFuncJob(systems.JOB_TYPE_RENDER, func() {
		g.renderOn.Store(uint64(platform.CurrentThreadID()))
		g.renderJobs.Add(1)
	})
	build := js.CreateFuncJob(systems.JOB_TYPE_GENERIC, func() {})
	upload.DependsOn(build)
	upload.DispatchAndRelease()
	build.DispatchAndRelease()
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Jobs.Workers = 2
	cfg.Jobs.StepBudgetMS = 100
	return cfg
}

func TestEngineLifecycle(t *testing.T) {
	g := newCountingGame(5)
	e, err := New(g.Game, testConfig())
	require.NoError(t, err)
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.ErrorIs(t, e.Run(), ErrInvalidStage)

	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Same(t, e.SystemManager(), g.SystemManager)
	assert.ErrorIs(t, e.Initialize(), ErrInvalidStage)

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(5), e.FrameNumber())
	assert.Equal(t, 5, g.updates)
	// the budget is large enough to drain every main job in its own frame
	assert.Equal(t, int32(5), g.mainJobs.Load())

	renderThread := e.renderThread.ID()
	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.Equal(t, int32(5), g.renderJobs.Load())
	assert.Equal(t, uint64(renderThread), g.renderOn.Load())
	assert.Zero(t, e.SystemManager().JobSystem.Stats().LiveJobs)
	assert.ErrorIs(t, e.Shutdown(), ErrInvalidStage)
}

func TestEngineQuitEvent(t *testing.T) {
	g := newCountingGame(0)
	var e *Engine
	g.FnUpdate = func(float64) error {
		g.updates++
		if g.updates == 3 {
			e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return nil
	}
	var err error
	e, err = New(g.Game, testConfig())
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())
	assert.Equal(t, 3, g.updates)
	require.NoError(t, e.Shutdown())
}

func TestEngineUpdateError(t *testing.T) {
	g := newCountingGame(0)
	boom := errors.New("boom")
	g.FnUpdate = func(float64) error { return boom }
	e, err := New(g.Game, testConfig())
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.ErrorIs(t, e.Run(), boom)
	require.NoError(t, e.Shutdown())
}

func TestEngineProfilesFrames(t *testing.T) {
	if !profiler.Enabled {
		t.Skip("profiler compiled out")
	}
	g := newCountingGame(3)
	e, err := New(g.Game, testConfig())
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	prof := e.SystemManager().Profiler
	require.NotNil(t, prof)
	prof.Flush()
	tp := prof.ThreadProfile(platform.CurrentThreadID())
	require.NotNil(t, tp)
	assert.Equal(t, "Main", tp.Name())
	f := tp.PreviousFrame()
	require.NotNil(t, f)
	assert.Equal(t, "frame", f.Root().Tag)
	assert.True(t, f.Closed())

	var buf bytes.Buffer
	require.NoError(t, e.WriteProfile(&buf, profiler.SORT_BY_SELF))
	assert.Contains(t, buf.String(), "frame")
	assert.Contains(t, buf.String(), "update")

	require.NoError(t, e.Shutdown())
}

func TestEngineApplyConfig(t *testing.T) {
	g := newCountingGame(1)
	e, err := New(g.Game, testConfig())
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	var toggled []bool
	e.Events().Register(core.EVENT_CODE_PROFILER_TOGGLED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		toggled = append(toggled, data.Data.(bool))
		return true
	})

	cfg := testConfig()
	cfg.Jobs.StepBudgetMS = 7
	cfg.Profiler.Paused = true
	cfg.Log.Level = "warn"
	e.Events().Fire(core.EVENT_CODE_CONFIG_RELOADED, nil, core.EventContext{Data: cfg})

	assert.Equal(t, 7*time.Millisecond, e.StepBudget())
	assert.Equal(t, "warn", core.LogLevel())
	if e.SystemManager().Profiler != nil {
		assert.True(t, e.SystemManager().Profiler.Paused())
		assert.Equal(t, []bool{true}, toggled)
	}
	require.NoError(t, core.SetLogLevel("debug"))
}

func TestEngineWatchesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nworkers = 1\nstep_budget_ms = 4\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	g := newCountingGame(1)
	g.ApplicationConfig.ConfigPath = path
	e, err := New(g.Game, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nworkers = 1\nstep_budget_ms = 12\n"), 0o644))
	assert.Eventually(t, func() bool {
		return e.StepBudget() == 12*time.Millisecond
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Profiler.History = 0
	_, err = New(newCountingGame(1).Game, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestShutdownAfterFailedInitialize(t *testing.T) {
	g := newCountingGame(1)
	g.ApplicationConfig.ConfigPath = filepath.Join(t.TempDir(), "missing", "engine.toml")
	e, err := New(g.Game, testConfig())
	require.NoError(t, err)

	require.Error(t, e.Initialize())
	assert.Equal(t, EngineStageInitializing, e.Stage())
	require.NotNil(t, e.SystemManager())
	require.NotNil(t, e.renderThread)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.ErrorIs(t, e.SystemManager().JobSystem.Shutdown(), systems.ErrJobSystemShutdown)
	assert.ErrorIs(t, e.Shutdown(), ErrInvalidStage)
}
