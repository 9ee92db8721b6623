// Package config loads the engine settings from a TOML file and watches it
// for changes while the engine runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
)

var ErrInvalidConfig = errors.New("invalid engine configuration")

type LogConfig struct {
	Level string `toml:"level"`
}

type JobsConfig struct {
	// Workers follows the job system convention: negative means processor
	// count minus that many, zero means no generic workers.
	Workers      int `toml:"workers"`
	StepBudgetMS int `toml:"step_budget_ms"`
}

type ProfilerConfig struct {
	Enabled        bool   `toml:"enabled"`
	History        int    `toml:"history"`
	MemoryTracking string `toml:"memory_tracking"`
	Paused         bool   `toml:"paused"`
}

type Config struct {
	Log      LogConfig      `toml:"log"`
	Jobs     JobsConfig     `toml:"jobs"`
	Profiler ProfilerConfig `toml:"profiler"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Jobs: JobsConfig{
			Workers:      -1,
			StepBudgetMS: 4,
		},
		Profiler: ProfilerConfig{
			Enabled:        true,
			History:        profiler.PROFILER_FRAME_HISTORY,
			MemoryTracking: "basic",
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogDebug("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Jobs.StepBudgetMS < 0 {
		return fmt.Errorf("%w: step_budget_ms must not be negative", ErrInvalidConfig)
	}
	if c.Profiler.History <= 0 {
		return fmt.Errorf("%w: profiler history must be positive", ErrInvalidConfig)
	}
	if _, err := profiler.ParseMemoryTracking(c.Profiler.MemoryTracking); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// StepBudget is the time the main thread spends on MAIN jobs per frame.
func (c *Config) StepBudget() time.Duration {
	return time.Duration(c.Jobs.StepBudgetMS) * time.Millisecond
}

// ProfilerSettings translates the profiler section. It returns nil when the
// profiler is disabled.
func (c *Config) ProfilerSettings() *profiler.Config {
	if !c.Profiler.Enabled {
		return nil
	}
	tracking, _ := profiler.ParseMemoryTracking(c.Profiler.MemoryTracking)
	return &profiler.Config{
		HistorySize:    c.Profiler.History,
		MemoryTracking: tracking,
		StartPaused:    c.Profiler.Paused,
	}
}

func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
