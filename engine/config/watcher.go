package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/hzdclouds/engine/core"
)

var ErrWatcherClosed = errors.New("config watcher already closed")

// ReloadFunc receives every configuration that was reloaded successfully.
type ReloadFunc func(cfg *Config)

// Watcher reloads the configuration file whenever it is written. The parent
// directory is watched rather than the file, editors tend to replace files by
// renaming a temporary one over them.
type Watcher struct {
	path     string
	onReload ReloadFunc

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}

	mutex    sync.Mutex
	isClosed bool
	current  *Config
}

func NewWatcher(path string, initial *Config, onReload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		onReload: onReload,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		current:  initial,
	}
	go w.start()
	core.LogDebug("watching %s for configuration changes", abs)
	return w, nil
}

// Current returns the configuration last loaded.
func (w *Watcher) Current() *Config {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.current
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return ErrWatcherClosed
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// keep running with the previous configuration
		core.LogWarn("config reload failed: %s", err)
		return
	}
	w.mutex.Lock()
	w.current = cfg
	w.mutex.Unlock()

	core.LogInfo("configuration reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
