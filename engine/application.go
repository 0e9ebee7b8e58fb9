package engine

import (
	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/builder"
)

// Version is recorded in imported projects. Projects last imported by an
// older version are fully reimported.
const Version = "1.0.0"

const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUsageError  = 2
	ExitInterrupted = 130
)

type Config struct {
	// Project file to open.
	ProjectFile string
	// Deployment directory. Empty means the live editor: code is built as a
	// reloadable module and nothing is copied out of the project.
	TargetPath string
	// Additional converters, registered after the built-in ones so they can
	// take over any suffix.
	Converters []assets.Converter
	// Toolchains override the built-in ones for the platforms they declare.
	Toolchains []builder.Toolchain
	// Reloader for editor builds. Defaults to logging the new module.
	Reloader builder.Reloader
	// Capacity of the control queue.
	QueueSize int
	// Deflate package entries instead of storing them.
	CompressPackage bool
}
