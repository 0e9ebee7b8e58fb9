package builder

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spaghettifunk/anima-builder/engine/platform"
	"github.com/spaghettifunk/anima-builder/engine/process"
	"github.com/spaghettifunk/anima-builder/engine/project"
)

// PackagingMode orders asset packaging relative to compilation.
type PackagingMode int

const (
	PackagingNone PackagingMode = iota
	// Assets are packaged first so the build can embed them.
	PackagingBefore
	// Assets are packaged next to the freshly built artifact.
	PackagingAfter
)

func (m PackagingMode) String() string {
	switch m {
	case PackagingNone:
		return "None"
	case PackagingBefore:
		return "Before"
	case PackagingAfter:
		return "After"
	}
	return fmt.Sprintf("PackagingMode(%d)", int(m))
}

// BuildContext describes one build of the generated project.
type BuildContext struct {
	Project  *project.ProjectSettings
	Platform platform.Platform
	// Sources are the project code files, already copied into GameDir.
	Sources    []string
	Components []string
	// Editor is set when building the hot-reload module for the live editor
	// rather than a deployment.
	Editor bool
}

// Root is the generated project directory, used as the toolchain working
// directory.
func (c *BuildContext) Root() string { return c.Project.GeneratedPath() }

// GameDir holds the copied project sources and the generated registration.
func (c *BuildContext) GameDir() string { return filepath.Join(c.Root(), "game") }

// OutputDir is where the artifact is written.
func (c *BuildContext) OutputDir() string {
	if c.Editor {
		return c.Project.PluginsPath()
	}
	return filepath.Join(c.Root(), "bin", c.Platform.Name)
}

func (c *BuildContext) ModuleName() string {
	return project.IdentifierName(c.Project.Name)
}

// Invocation is a ready to spawn toolchain command.
type Invocation struct {
	Program string
	Args    []string
	Dir     string
	Env     *process.Environment
}

// Toolchain knows how to lay out and compile the generated project for a
// set of platforms.
type Toolchain interface {
	Name() string
	Suffixes() []string
	Platforms() []string
	Templates() fs.FS
	// Prepare writes the project description files into ctx.Root().
	Prepare(b *BaseBuilder, ctx *BuildContext) error
	Command(ctx *BuildContext) (Invocation, error)
	Artifact(ctx *BuildContext) string
	PackagingMode() PackagingMode
}
