package core

import (
	"errors"
)

var (
	ErrUnknown = errors.New("unknown")

	// process supervision
	ErrFailedToStart  = errors.New("process failed to start")
	ErrAlreadyRunning = errors.New("process already running")
	ErrNotRunning     = errors.New("process not running")

	// import pipeline
	ErrNoConverter    = errors.New("no converter registered for asset")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrAssetExists    = errors.New("asset already exists")
	ErrMigration      = errors.New("asset format migration failed")
	ErrInvalidPayload = errors.New("invalid resource payload")

	// native build
	ErrBuildInProgress = errors.New("build already in progress")
	ErrNoToolchain     = errors.New("no toolchain available")
	ErrNoArtifact      = errors.New("build produced no artifact")

	// packaging
	ErrPackageOpen = errors.New("cannot open package")
	ErrPackageRead = errors.New("cannot read package input")

	// project
	ErrInvalidProject   = errors.New("invalid project file")
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrEngineNotStarted = errors.New("engine not initialized")
)
