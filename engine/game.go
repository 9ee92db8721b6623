package engine

import (
	"github.com/spaghettifunk/hzdclouds/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// SystemManager is set by the engine before FnInitialize is called.
	SystemManager *systems.SystemManager
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnRender      Render
	FnShutdown    Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(deltaTime float64) error
type Shutdown func() error
