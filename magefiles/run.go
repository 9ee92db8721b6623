//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the cloud testbed with the engine.toml found in the testbed directory.
func (Run) Engine() error {
	return goCommand("run", ".", "-config", "testbed/engine.toml").run()
}

// Runs the testbed for a fixed number of frames and prints the self time profile.
func (Run) Profile() error {
	return goCommand("run", ".", "-config", "testbed/engine.toml", "-frames", "600", "-self").run()
}
