//go:build mage

package main

import (
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const binDir = "bin"

func cliBinary() string {
	name := "anima-builder"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(binDir, name)
}

// Downloads the modules and builds the anima-builder binary into bin/.
func (Build) Cli() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	_, err := executeCmd("go",
		withArgs("build", "-trimpath", "-o", cliBinary(), "."),
		withStream(),
	)
	return err
}

// Runs every test of the module.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
