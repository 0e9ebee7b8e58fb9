package builder

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

// Reloader swaps the running editor onto a freshly built module.
type Reloader interface {
	Reload(artifact string) error
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(artifact string) error

func (f ReloaderFunc) Reload(artifact string) error { return f(artifact) }

// LogReloader only announces the new module. Used when no editor is attached.
type LogReloader struct {
	logger *core.Logger
}

func NewLogReloader() *LogReloader {
	return &LogReloader{logger: core.NewLogger("Reloader")}
}

func (r *LogReloader) Reload(artifact string) error {
	info, err := os.Stat(artifact)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrNoArtifact, artifact)
	}
	r.logger.Infof("module %s ready for reload (%d bytes)", artifact, info.Size())
	return nil
}
