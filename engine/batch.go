package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/packager"
	"github.com/spaghettifunk/anima-builder/engine/platform"
)

// BatchBuilder deploys a project to one or more platforms, one after the
// other, and quits the engine once the last one is done.
type BatchBuilder struct {
	engine *Engine
	target string
	stack  []string
	done   []string

	logger *core.Logger
}

// NewBatchBuilder attaches to an initialized engine running in deployment
// mode.
func NewBatchBuilder(e *Engine) (*BatchBuilder, error) {
	if e.Stage() != EngineStageInitialized {
		return nil, core.ErrEngineNotStarted
	}
	target := e.Project().TargetPath()
	if target == "" {
		return nil, fmt.Errorf("batch build needs a target directory")
	}
	b := &BatchBuilder{
		engine: e,
		target: target,
		logger: core.NewLogger("Builder"),
	}
	e.Events().Register(core.EVENT_CODE_PIPELINE_FINISHED, b, b.onPipelineFinished)
	return b, nil
}

// SetPlatform queues name, or every platform of the project when name is
// empty, and starts with the first one.
func (b *BatchBuilder) SetPlatform(name string) error {
	var names []string
	if name == "" {
		names = b.engine.Project().PlatformList(platform.Names())
	} else {
		names = []string{name}
	}
	for _, n := range names {
		if _, ok := platform.Lookup(n); !ok || n == "" {
			return fmt.Errorf("%w: %q", core.ErrUnknownPlatform, n)
		}
	}
	// first listed is built first
	for i := len(names) - 1; i >= 0; i-- {
		b.stack = append(b.stack, names[i])
	}
	b.engine.Post(b.next)
	return nil
}

// Built lists the platforms deployed so far.
func (b *BatchBuilder) Built() []string {
	return append([]string(nil), b.done...)
}

func (b *BatchBuilder) next() {
	if len(b.stack) == 0 {
		b.engine.Quit(ExitSuccess)
		return
	}
	name := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]

	if err := b.engine.SetCurrentPlatform(name); err != nil {
		b.logger.Errorf("cannot switch to %s: %s", name, err)
		b.engine.Quit(ExitFailure)
		return
	}
	b.logger.Infof("building for %s", name)
	b.engine.rescan(false)
}

func (b *BatchBuilder) onPipelineFinished(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if !data.Success {
		b.logger.Errorf("build for %s failed", data.Name)
		b.engine.Quit(ExitFailure)
		return false
	}
	if err := b.deploy(data.Name, data.Path); err != nil {
		b.logger.Errorf("cannot deploy %s: %s", data.Name, err)
		b.engine.Quit(ExitFailure)
		return false
	}
	b.done = append(b.done, data.Name)

	if len(b.stack) == 0 {
		b.logger.Infof("done: %v", b.done)
		b.engine.Quit(ExitSuccess)
		return false
	}
	b.engine.Post(b.next)
	return false
}

// deploy replaces <target>/<platform> with the build artifact, plus the
// asset package for platforms that do not embed their assets. archive is
// the package the builder already wrote in this pipeline; without one the
// import directory is packaged.
func (b *BatchBuilder) deploy(name, archive string) error {
	p, ok := platform.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownPlatform, name)
	}
	dst := filepath.Join(b.target, p.Name)
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	if artifact := b.engine.Project().Artifact(); artifact != "" {
		if err := copyFile(artifact, filepath.Join(dst, filepath.Base(artifact)), 0o755); err != nil {
			return fmt.Errorf("%w: %v", core.ErrNoArtifact, err)
		}
	}
	if !p.IsPackage {
		if archive != "" {
			if err := copyFile(archive, filepath.Join(dst, packager.PackageName), 0o644); err != nil {
				return fmt.Errorf("%w: %v", core.ErrPackageRead, err)
			}
		} else if _, err := b.engine.Packager().Package(dst); err != nil {
			return err
		}
	}
	b.logger.Infof("deployed %s to %s", name, dst)
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
