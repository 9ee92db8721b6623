//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// packages exercised by the race detector: everything shared between threads
var concurrentPackages = []string{
	"./engine/platform/...",
	"./engine/containers/...",
	"./engine/memory/...",
	"./engine/profiler/...",
	"./engine/systems/...",
}

// goInvocation is one go tool command, with the tags and environment the
// engine variants need.
type goInvocation struct {
	verb string
	tags []string
	env  map[string]string
	args []string
}

func goCommand(verb string, args ...string) *goInvocation {
	return &goInvocation{verb: verb, args: args, env: map[string]string{}}
}

func (g *goInvocation) withTags(tags ...string) *goInvocation {
	g.tags = append(g.tags, tags...)
	return g
}

func (g *goInvocation) withEnv(key, value string) *goInvocation {
	g.env[key] = value
	return g
}

func (g *goInvocation) argv() []string {
	argv := []string{g.verb}
	if len(g.tags) > 0 {
		argv = append(argv, "-tags", strings.Join(g.tags, ","))
	}
	return append(argv, g.args...)
}

// run streams the command output, always for tests and runs, otherwise only
// with mage -v.
func (g *goInvocation) run() error {
	argv := g.argv()
	fmt.Printf("go %s\n", strings.Join(argv, " "))
	var err error
	if mg.Verbose() || g.verb != "build" {
		err = sh.RunWithV(g.env, mg.GoCmd(), argv...)
	} else {
		err = sh.RunWith(g.env, mg.GoCmd(), argv...)
	}
	if err != nil {
		return fmt.Errorf("go %s failed: %w", g.verb, err)
	}
	return nil
}

func goTidy() error {
	return goCommand("mod", "tidy").run()
}
