//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// demoDir holds the sample project. Commands run from there so the
// project file and the deployment directory stay relative.
var demoDir = filepath.Join("testdata", "demo")

// Builds the demo project for every platform into testdata/demo/build.
func (Run) Demo() error {
	mg.Deps(Build.Cli)
	fmt.Println("Building demo...")
	_, err := executeCmd(cliBinary(),
		withDir(demoDir),
		withArgs("--log-level", "debug", "build"),
		withArgs("--source", "demo.toml", "--target", "build"),
		withStream(),
	)
	return err
}

// Imports the demo project and keeps it up to date until interrupted.
func (Run) Watch() error {
	mg.Deps(Build.Cli)
	_, err := executeCmd(cliBinary(),
		withDir(demoDir),
		withArgs("watch", "--source", "demo.toml"),
		withStream(),
	)
	return err
}
