//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(goTidy)
	return goCommand("build", "-o", "bin/hzdclouds", ".").run()
}

// Builds the engine with the profiler compiled out.
func (Build) NoProfile() error {
	mg.Deps(goTidy)
	return goCommand("build", "-o", "bin/hzdclouds-noprofile", ".").withTags("noprofile").run()
}
