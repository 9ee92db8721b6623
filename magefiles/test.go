//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every unit test.
func (Test) Unit() error {
	return goCommand("test", "./...").run()
}

// Runs the concurrency heavy packages under the race detector.
func (Test) Race() error {
	return goCommand("test", append([]string{"-race", "-count=1"}, concurrentPackages...)...).
		withEnv("CGO_ENABLED", "1").
		run()
}

// Runs the tests with the profiler compiled out.
func (Test) NoProfile() error {
	mg.Deps(Test.Unit)
	return goCommand("test", "./...").withTags("noprofile").run()
}
