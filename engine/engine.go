package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/assets/converters"
	"github.com/spaghettifunk/anima-builder/engine/builder"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/packager"
	"github.com/spaghettifunk/anima-builder/engine/project"
	"github.com/spaghettifunk/anima-builder/engine/resources"
	"github.com/spaghettifunk/anima-builder/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const defaultQueueSize = 256

// Engine owns every pipeline component of one project. All pipeline work
// runs on a single control goroutine, fed through Post.
type Engine struct {
	config       Config
	currentStage Stage

	project      *project.ProjectSettings
	events       *core.EventSystem
	jobs         *systems.JobSystem
	registry     *assets.Registry
	index        *resources.Index
	assetManager *assets.AssetManager
	packager     *packager.Packager
	metrics      *core.Metrics

	builders map[string]*builder.NativeCodeBuilder
	builder  *builder.NativeCodeBuilder

	forceImport bool
	// package written by the builder during the current pipeline
	pipelineArchive string

	exitCh   chan int
	quitOnce sync.Once

	logger *core.Logger
}

func New(cfg Config) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Engine{
		config:       cfg,
		currentStage: EngineStageUninitialized,
		events:       core.NewEventSystem(),
		metrics:      core.NewMetrics(),
		builders:     make(map[string]*builder.NativeCodeBuilder),
		exitCh:       make(chan int, 1),
		logger:       core.NewLogger("Engine"),
	}
}

// Initialize opens the project and wires the pipeline for its current
// platform.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized")
	}
	e.currentStage = EngineStageInitializing

	ps, err := project.Load(e.config.ProjectFile)
	if err != nil {
		return err
	}
	if err := ps.SetTargetPath(e.config.TargetPath); err != nil {
		return err
	}
	e.project = ps

	jobs, err := systems.NewJobSystem(1, e.config.QueueSize)
	if err != nil {
		return err
	}
	e.jobs = jobs

	e.registry = assets.NewRegistry(ps.ImportPath())
	for _, c := range append(converters.Defaults(), e.config.Converters...) {
		if !e.registry.RegisterConverter(c) {
			e.logger.Warnf("converter %T declares no suffixes", c)
		}
	}

	e.index = resources.NewIndex(ps.ImportPath())
	if err := e.index.Load(ps.IndexPath()); err != nil {
		e.logger.Warnf("discarding index: %s", err)
		e.index.Reset()
	}

	e.packager = packager.New(ps.ImportPath, e.index)
	e.packager.Compress = e.config.CompressPackage

	e.assetManager = assets.NewAssetManager(ps, e.registry, e.index, e.events, e.metrics)

	e.events.Register(core.EVENT_CODE_IMPORT_FINISHED, e, e.onImportFinished)
	e.events.Register(core.EVENT_CODE_BUILD_FINISHED, e, e.onBuildFinished)

	e.selectBuilder()

	if ps.RequiresReimport(Version) {
		e.logger.Infof("project was imported by %q, everything will be reimported", ps.SDKVersion)
		e.forceImport = true
	}

	e.currentStage = EngineStageInitialized
	e.logger.Infof("project %s loaded for %s", ps.Name, ps.CurrentPlatformName())
	return nil
}

func (e *Engine) toolchainFor(name string) (builder.Toolchain, bool) {
	for _, tc := range e.config.Toolchains {
		for _, p := range tc.Platforms() {
			if p == name {
				return tc, true
			}
		}
	}
	return builder.ToolchainFor(name)
}

// selectBuilder registers the builder of the current platform. Its suffixes
// replace the ones of the previous platform's builder.
func (e *Engine) selectBuilder() {
	tc, ok := e.toolchainFor(e.project.CurrentPlatformName())
	if !ok {
		e.builder = nil
		e.project.SetArtifact("")
		return
	}
	nb, ok := e.builders[tc.Name()]
	if !ok {
		nb = builder.NewNativeCodeBuilder(builder.Options{
			Toolchain: tc,
			Project:   e.project,
			Events:    e.events,
			Metrics:   e.metrics,
			Reloader:  e.config.Reloader,
			Packager:  e.packager,
			Post:      e.Post,
		})
		e.builders[tc.Name()] = nb
	}
	e.registry.RegisterConverter(nb)
	e.builder = nb
	e.project.SetArtifact(nb.Artifact())
}

func (e *Engine) Stage() Stage                        { return e.currentStage }
func (e *Engine) Project() *project.ProjectSettings   { return e.project }
func (e *Engine) Events() *core.EventSystem           { return e.events }
func (e *Engine) Registry() *assets.Registry          { return e.registry }
func (e *Engine) Index() *resources.Index             { return e.index }
func (e *Engine) Assets() *assets.AssetManager        { return e.assetManager }
func (e *Engine) Packager() *packager.Packager        { return e.packager }
func (e *Engine) Metrics() *core.Metrics              { return e.metrics }
func (e *Engine) Builder() *builder.NativeCodeBuilder { return e.builder }

// Post runs fn on the control goroutine.
func (e *Engine) Post(fn func()) {
	e.jobs.Post("post", fn)
}

// Rescan queues a scan of the whole content tree followed by an import.
func (e *Engine) Rescan(force bool) {
	e.Post(func() { e.rescan(force) })
}

func (e *Engine) rescan(force bool) {
	e.pipelineArchive = ""
	force = force || e.forceImport
	e.assetManager.Rescan(e.project.ContentPath(), force)
	e.assetManager.Import()

	if e.forceImport {
		e.forceImport = false
		e.project.SDKVersion = Version
		if err := e.project.Save(); err != nil {
			e.logger.Warnf("cannot record the builder version: %s", err)
		}
	}
}

// Refresh queues the import of changed sources and the cleanup of removed
// ones, as reported by a Watcher.
func (e *Engine) Refresh(changed, removed []string) {
	e.Post(func() {
		e.pipelineArchive = ""
		for _, path := range removed {
			if err := e.assetManager.SourceRemoved(path); err != nil {
				e.logger.Debugf("%s", err)
			}
		}
		for _, path := range changed {
			e.assetManager.Rescan(path, false)
		}
		e.assetManager.Import()
	})
}

// SetCurrentPlatform switches the import directory, index and builder to
// the named platform. It must run on the control goroutine once the engine
// runs.
func (e *Engine) SetCurrentPlatform(name string) error {
	if e.builder != nil && e.builder.IsBuilding() {
		return core.ErrBuildInProgress
	}
	if err := e.index.Save(e.project.IndexPath()); err != nil {
		e.logger.Warnf("cannot save index: %s", err)
	}
	if err := e.project.SetCurrentPlatform(name); err != nil {
		return err
	}

	e.registry.SetImportDir(e.project.ImportPath())
	e.index.SetImportDir(e.project.ImportPath())
	e.index.Reset()
	if err := e.index.Load(e.project.IndexPath()); err != nil {
		e.logger.Warnf("discarding index: %s", err)
		e.index.Reset()
	}
	e.selectBuilder()

	e.events.Fire(core.EVENT_CODE_PLATFORM_CHANGED, e, core.EventContext{Name: e.project.CurrentPlatformName()})
	return nil
}

func (e *Engine) onImportFinished(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if !data.Success {
		e.logger.Warn("some assets failed to import")
	}
	e.startBuild()
	return false
}

// startBuild compiles the project code when it changed. The pipeline is
// finished right away when there is nothing to build.
func (e *Engine) startBuild() {
	nb := e.builder
	if nb == nil {
		e.finishPipeline(true)
		return
	}
	if nb.IsBuilding() {
		// the running build reports once it is done
		return
	}
	nb.RescanSources(e.project.ContentPath())
	if nb.IsEmpty() || !nb.IsOutdated() {
		e.finishPipeline(true)
		return
	}

	if nb.PackagingMode() == builder.PackagingBefore {
		if _, err := e.packager.Package(e.project.GeneratedPath()); err != nil {
			e.logger.Errorf("packaging before build failed: %s", err)
			e.finishPipeline(false)
			return
		}
	}

	started, err := nb.BuildProject()
	if err != nil {
		e.logger.Errorf("%s: %s", nb.Name(), err)
		e.finishPipeline(false)
		return
	}
	if !started {
		e.finishPipeline(true)
	}
}

func (e *Engine) onBuildFinished(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if sender != e.builder {
		return false
	}
	if data.Success {
		e.pipelineArchive = e.builder.Archive()
	}
	if data.Success && e.builder.IsOutdated() {
		// sources changed while compiling
		e.startBuild()
		return false
	}
	e.finishPipeline(data.Success)
	return false
}

// finishPipeline reports the outcome of the current pipeline. Path carries
// the asset package the builder wrote during it, if any.
func (e *Engine) finishPipeline(success bool) {
	converted, failed := e.metrics.Counts()
	e.logger.Debugf("pipeline finished: %d converted, %d failed, %s average",
		converted, failed, e.metrics.AverageConversion())
	e.events.Fire(core.EVENT_CODE_PIPELINE_FINISHED, e, core.EventContext{
		Name:    e.project.CurrentPlatformName(),
		Path:    e.pipelineArchive,
		Success: success,
	})
}

// Run blocks until Quit is called or ctx is done, then shuts the engine
// down. It returns the exit code of the process.
func (e *Engine) Run(ctx context.Context) int {
	if e.currentStage != EngineStageInitialized {
		e.logger.Error(core.ErrEngineNotStarted)
		return ExitFailure
	}
	e.currentStage = EngineStageRunning

	var code int
	select {
	case code = <-e.exitCh:
	case <-ctx.Done():
		e.logger.Warn("interrupted")
		code = ExitInterrupted
	}

	e.shutdown()
	return code
}

// Quit makes Run return code. Only the first call counts.
func (e *Engine) Quit(code int) {
	e.quitOnce.Do(func() {
		e.exitCh <- code
	})
}

func (e *Engine) shutdown() {
	e.currentStage = EngineStageShuttingDown
	for _, nb := range e.builders {
		nb.Kill()
	}
	if err := e.jobs.Shutdown(); err != nil {
		e.logger.Warnf("%s", err)
	}
	if err := e.index.Save(e.project.IndexPath()); err != nil {
		e.logger.Warnf("cannot save index: %s", err)
	}
	e.events.Shutdown()
}
