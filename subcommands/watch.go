package subcommands

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/spaghettifunk/anima-builder/engine"
	"github.com/spaghettifunk/anima-builder/engine/assets"
)

// WatchCMD keeps the import cache and the editor module of a project up to
// date until interrupted.
type WatchCMD struct {
	Source string
}

func (*WatchCMD) Name() string     { return "watch" }
func (*WatchCMD) Synopsis() string { return "reimport and rebuild a project as it changes" }

func (c *WatchCMD) Usage() string {
	return c.Name() + " --source <project.toml>:\n  " + c.Synopsis() + ".\n"
}

func (c *WatchCMD) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.Source, "source", "", "project file")
}

func (c *WatchCMD) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.Source == "" {
		return usageError(c, f, "--source is required")
	}
	e, err := openEngine(engine.Config{ProjectFile: c.Source})
	if err != nil {
		logger.Error(err)
		return subcommands.ExitFailure
	}

	w, err := assets.NewWatcher(e.Project().ContentPath(), assets.DefaultDebounce, e.Refresh)
	if err != nil {
		logger.Error(err)
		e.Quit(engine.ExitFailure)
		return subcommands.ExitStatus(e.Run(ctx))
	}
	defer w.Close()

	e.Rescan(false)
	logger.Infof("watching %s", e.Project().ContentPath())
	if code := e.Run(ctx); code != engine.ExitInterrupted {
		return subcommands.ExitStatus(code)
	}
	return subcommands.ExitSuccess
}
