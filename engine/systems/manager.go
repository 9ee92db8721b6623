package systems

import (
	"errors"

	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
)

type SystemManagerConfig struct {
	// Profiler is nil when profiling is disabled.
	Profiler  *profiler.Config
	JobSystem *JobSystemConfig
}

// SystemManager owns the engine wide systems. The profiler comes up first so
// every other system can report into it, and goes down last.
type SystemManager struct {
	Profiler  *profiler.Profiler
	JobSystem *JobSystem
}

func NewSystemManager(config *SystemManagerConfig) (*SystemManager, error) {
	if config == nil {
		config = &SystemManagerConfig{}
	}

	var prof *profiler.Profiler
	if config.Profiler != nil {
		p, err := profiler.New(config.Profiler)
		if err != nil {
			return nil, err
		}
		prof = p
	}

	jsConfig := JobSystemConfig{Workers: -1}
	if config.JobSystem != nil {
		jsConfig = *config.JobSystem
	}
	jsConfig.Profiler = prof
	js, err := NewJobSystem(&jsConfig)
	if err != nil {
		if prof != nil {
			_ = prof.Shutdown()
		}
		return nil, err
	}

	return &SystemManager{
		Profiler:  prof,
		JobSystem: js,
	}, nil
}

// Shutdown stops the job system, unless the caller already did, then the profiler.
func (sm *SystemManager) Shutdown() error {
	if err := sm.JobSystem.Shutdown(); err != nil && !errors.Is(err, ErrJobSystemShutdown) {
		return err
	}
	if sm.Profiler != nil {
		if err := sm.Profiler.Shutdown(); err != nil {
			return err
		}
	}
	core.LogDebug("systems shut down")
	return nil
}
