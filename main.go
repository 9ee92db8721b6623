/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spaghettifunk/hzdclouds/engine"
	"github.com/spaghettifunk/hzdclouds/engine/config"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/profiler"
	"github.com/spaghettifunk/hzdclouds/testbed"
)

// the main loop owns the main OS thread
func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "testbed/engine.toml", "engine configuration file, reloaded on change")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until interrupted")
	bySelf := flag.Bool("self", false, "sort the profile by self time instead of total time")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("failed to load configuration: %s", err)
	}

	tb := testbed.NewTestGame("HZD Clouds", *configPath, *frames)

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		// tear down whatever came up before the failure
		if serr := e.Shutdown(); serr != nil {
			core.LogError("shutdown after failed initialization: %s", serr)
		}
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		// capture sigterm and other system call here
		<-sigCh
		e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	}()

	// run engine
	if err := e.Run(); err != nil {
		core.LogError("engine stopped: %s", err)
	}

	mode := profiler.SORT_BY_TOTAL
	if *bySelf {
		mode = profiler.SORT_BY_SELF
	}
	if err := e.WriteProfile(os.Stdout, mode); err != nil {
		core.LogError("failed to write the profile: %s", err)
	}

	if err := e.Shutdown(); err != nil {
		panic(err)
	}
}
