package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/process"
	"github.com/spaghettifunk/anima-builder/engine/project"
)

type BuildState int

const (
	Idle BuildState = iota
	GeneratingProject
	Compiling
	Succeeded
	Failed
)

func (s BuildState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case GeneratingProject:
		return "GeneratingProject"
	case Compiling:
		return "Compiling"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("BuildState(%d)", int(s))
}

// Packager writes the package archive into a directory.
type Packager interface {
	Package(dir string) (string, error)
}

type Options struct {
	Toolchain Toolchain
	Project   *project.ProjectSettings
	Events    *core.EventSystem
	Metrics   *core.Metrics
	// Reloader is called after a successful editor build. Defaults to a
	// LogReloader.
	Reloader Reloader
	// Packager is used after a successful deployment build when the
	// toolchain packages After. Optional.
	Packager Packager
	// Post delivers the build finished handling onto the control
	// goroutine. Defaults to calling it on the process monitor.
	Post func(func())
}

// NativeCodeBuilder compiles the project code into a module with an
// external toolchain. Builds are asynchronous: BuildProject returns once the
// toolchain runs and the outcome is reported by a BUILD_FINISHED event.
type NativeCodeBuilder struct {
	*BaseBuilder

	toolchain Toolchain
	project   *project.ProjectSettings
	events    *core.EventSystem
	metrics   *core.Metrics
	reloader  Reloader
	packager  Packager
	post      func(func())

	proc  *process.Process
	clock *core.Clock

	mu         sync.Mutex
	state      BuildState
	ctx        *BuildContext
	artifact   string
	archive    string
	generation uint64
}

func NewNativeCodeBuilder(opts Options) *NativeCodeBuilder {
	nb := &NativeCodeBuilder{
		BaseBuilder: NewBaseBuilder(opts.Toolchain.Name(), opts.Toolchain.Suffixes(), opts.Toolchain.Templates()),
		toolchain:   opts.Toolchain,
		project:     opts.Project,
		events:      opts.Events,
		metrics:     opts.Metrics,
		reloader:    opts.Reloader,
		packager:    opts.Packager,
		post:        opts.Post,
		proc:        process.New(),
		clock:       core.NewClock(),
	}
	if nb.metrics == nil {
		nb.metrics = core.NewMetrics()
	}
	if nb.reloader == nil {
		nb.reloader = NewLogReloader()
	}
	if nb.post == nil {
		nb.post = func(fn func()) { fn() }
	}
	nb.proc.OnFinished(func(exitCode int) {
		nb.post(func() { nb.onBuildFinished(exitCode) })
	})
	// Code sources change the module, not the assets: a fresh builder
	// always compiles once.
	nb.MakeOutdated()
	return nb
}

func (nb *NativeCodeBuilder) Toolchain() Toolchain { return nb.toolchain }

func (nb *NativeCodeBuilder) Platforms() []string { return nb.toolchain.Platforms() }

func (nb *NativeCodeBuilder) PackagingMode() PackagingMode { return nb.toolchain.PackagingMode() }

func (nb *NativeCodeBuilder) IsNative() bool { return true }

func (nb *NativeCodeBuilder) State() BuildState {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.state
}

func (nb *NativeCodeBuilder) IsBuilding() bool {
	s := nb.State()
	return s == GeneratingProject || s == Compiling
}

// Artifact is the output of the last successful build.
func (nb *NativeCodeBuilder) Artifact() string {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.artifact
}

// Archive is the asset package written after the last build, or empty
// when that build did not package.
func (nb *NativeCodeBuilder) Archive() string {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.archive
}

// PersistentAsset names the compiled module in the resource index so it is
// never cleaned up as an orphan.
func (nb *NativeCodeBuilder) PersistentAsset() string {
	return ".embedded/" + project.IdentifierName(nb.project.Name) + "-module"
}

func (nb *NativeCodeBuilder) PersistentUUID() string { return nb.project.ID }

func (nb *NativeCodeBuilder) context() *BuildContext {
	return &BuildContext{
		Project:  nb.project,
		Platform: nb.project.CurrentPlatform(),
		Editor:   nb.project.TargetPath() == "",
	}
}

// GenerateProject refreshes the generated project: project sources are
// copied into the game package, components are discovered and every
// template is regenerated. Nothing is compiled.
func (nb *NativeCodeBuilder) GenerateProject() (*BuildContext, error) {
	ctx := nb.context()

	nb.RescanSources(nb.project.ContentPath())
	ctx.Sources = nb.Sources()
	ctx.Components = DiscoverComponents(ctx.Sources)

	if err := syncSources(nb.project.ContentPath(), ctx.GameDir(), ctx.Sources); err != nil {
		return nil, err
	}

	nb.SetTokens(nb.project.TokenValues())
	nb.SetToken("components", FormatList(ctx.Components, "", "", ", "))
	nb.SetBlock("ComponentList", FormatList(ctx.Components, "\t\"", "\",", "\n"))
	nb.SetBlock("RegisterComponents", registrationBlock(ctx.Components))

	if err := nb.toolchain.Prepare(nb.BaseBuilder, ctx); err != nil {
		return nil, err
	}
	nb.logger.Debugf("generated project in %s with %d sources and %d components",
		ctx.Root(), len(ctx.Sources), len(ctx.Components))
	return ctx, nil
}

// syncSources mirrors sources into dir, flattening their path relative to
// root. Copies of deleted sources are removed.
func syncSources(root, dir string, sources []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	wanted := make(map[string]string, len(sources))
	for _, src := range sources {
		rel, err := filepath.Rel(root, src)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(src)
		}
		wanted[strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")] = src
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == ComponentsFile {
			continue
		}
		if _, ok := wanted[e.Name()]; !ok {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}

	for name, src := range wanted {
		if err := copySource(src, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func copySource(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return writeIfChanged(dst, data)
}

// BuildProject starts the toolchain when the module is outdated. It returns
// false without error when there is nothing to do, and ErrBuildInProgress
// while a previous build runs. When the toolchain cannot be spawned the
// module stays outdated.
func (nb *NativeCodeBuilder) BuildProject() (bool, error) {
	nb.mu.Lock()
	if nb.state == GeneratingProject || nb.state == Compiling {
		nb.mu.Unlock()
		return false, core.ErrBuildInProgress
	}
	if !nb.IsOutdated() {
		nb.mu.Unlock()
		return false, nil
	}
	nb.state = GeneratingProject
	nb.generation = nb.snapshotGeneration()
	nb.archive = ""
	nb.mu.Unlock()

	ctx, err := nb.GenerateProject()
	if err != nil {
		nb.logger.Errorf("cannot generate project: %s", err)
		nb.setState(Idle)
		return false, err
	}
	inv, err := nb.toolchain.Command(ctx)
	if err != nil {
		nb.logger.Errorf("cannot prepare toolchain command: %s", err)
		nb.setState(Idle)
		return false, err
	}
	if err := os.MkdirAll(ctx.OutputDir(), 0o755); err != nil {
		nb.setState(Idle)
		return false, err
	}

	nb.mu.Lock()
	nb.ctx = ctx
	nb.state = Compiling
	nb.mu.Unlock()

	nb.logger.Infof("building %s for %s: %s %s", ctx.ModuleName(), ctx.Platform.Name, inv.Program, strings.Join(inv.Args, " "))
	nb.clock.Start()
	nb.proc.SetWorkingDirectory(inv.Dir)
	nb.proc.SetEnvironment(inv.Env)
	if err := nb.proc.Start(inv.Program, inv.Args...); err != nil {
		nb.clock.Stop()
		nb.logger.Errorf("cannot start toolchain: %s", err)
		nb.setState(Idle)
		return false, err
	}
	return true, nil
}

func (nb *NativeCodeBuilder) setState(s BuildState) {
	nb.mu.Lock()
	nb.state = s
	nb.mu.Unlock()
}

// Kill stops a running build. It is reported like any failed build.
func (nb *NativeCodeBuilder) Kill() {
	if nb.State() == Compiling {
		nb.proc.Kill()
	}
}

func (nb *NativeCodeBuilder) onBuildFinished(exitCode int) {
	nb.clock.Stop()
	elapsed := nb.clock.Elapsed()

	logOutput(nb.logger, nb.proc.ReadAllStandardOutput())
	errs, warnings, _ := logOutput(nb.logger, nb.proc.ReadAllStandardError())

	nb.mu.Lock()
	ctx, gen := nb.ctx, nb.generation
	nb.mu.Unlock()

	success := exitCode == 0
	if success {
		nb.setState(Succeeded)
		artifact := nb.toolchain.Artifact(ctx)
		nb.clearOutdated(gen)

		nb.mu.Lock()
		nb.artifact = artifact
		nb.mu.Unlock()
		nb.project.SetArtifact(artifact)

		nb.logger.Infof("build succeeded in %s (%d warnings): %s", elapsed, warnings, artifact)
		if ctx.Editor {
			if err := nb.reloader.Reload(artifact); err != nil {
				nb.logger.Warnf("reload failed: %s", err)
			}
		} else if nb.toolchain.PackagingMode() == PackagingAfter && nb.packager != nil {
			archive, err := nb.packager.Package(filepath.Dir(artifact))
			if err != nil {
				nb.logger.Errorf("packaging failed: %s", err)
			}
			nb.mu.Lock()
			nb.archive = archive
			nb.mu.Unlock()
		}
	} else {
		nb.setState(Failed)
		nb.logger.Errorf("build failed with exit code %d (%d errors, %d warnings)", exitCode, errs, warnings)
	}

	nb.metrics.BuildDone(elapsed, success)
	nb.setState(Idle)

	if nb.events != nil {
		nb.events.Fire(core.EVENT_CODE_BUILD_FINISHED, nb, core.EventContext{
			Name:     nb.Name(),
			ExitCode: exitCode,
			Success:  success,
		})
	}
}
