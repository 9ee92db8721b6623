package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/hzdclouds/engine/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "engine.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 4*time.Millisecond, cfg.StepBudget())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"

[jobs]
workers = 3

[profiler]
history = 8
memory_tracking = "verbose"
paused = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Jobs.Workers)
	// untouched keys keep their default
	assert.Equal(t, 4, cfg.Jobs.StepBudgetMS)
	assert.True(t, cfg.Profiler.Enabled)

	pc := cfg.ProfilerSettings()
	require.NotNil(t, pc)
	assert.Equal(t, 8, pc.HistorySize)
	assert.Equal(t, profiler.MEMORY_TRACKING_VERBOSE, pc.MemoryTracking)
	assert.True(t, pc.StartPaused)
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"negative budget": "[jobs]\nstep_budget_ms = -1\n",
		"empty history":   "[profiler]\nhistory = 0\n",
		"unknown mode":    "[profiler]\nmemory_tracking = \"everything\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Parse([]byte(doc), Default()), ErrInvalidConfig)
		})
	}
	assert.Error(t, Parse([]byte("[jobs\n"), Default()))
}

func TestDisabledProfiler(t *testing.T) {
	cfg := Default()
	cfg.Profiler.Enabled = false
	assert.Nil(t, cfg.ProfilerSettings())
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Jobs.Workers = 2
	data, err := cfg.Encode()
	require.NoError(t, err)

	decoded := &Config{}
	require.NoError(t, Parse(data, decoded))
	assert.Equal(t, cfg, decoded)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nstep_budget_ms = 4\n"), 0o644))
	initial, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan *Config, 16)
	w, err := NewWatcher(path, initial, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, w.Close()) }()
	assert.Same(t, initial, w.Current())

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nstep_budget_ms = 9\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			// a write may be observed before it is complete
			if cfg.Jobs.StepBudgetMS != 9 {
				continue
			}
			assert.Equal(t, 9, w.Current().Jobs.StepBudgetMS)
			return
		case <-deadline:
			t.Fatal("configuration change was not picked up")
		}
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	w, err := NewWatcher(path, Default(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), ErrWatcherClosed)
}
