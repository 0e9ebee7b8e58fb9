package subcommands

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/spaghettifunk/anima-builder/engine"
)

// ImportCMD brings the import cache of a project up to date, the way the
// editor does when it opens the project.
type ImportCMD struct {
	Source string
	Force  bool
}

func (*ImportCMD) Name() string     { return "import" }
func (*ImportCMD) Synopsis() string { return "import changed assets of a project" }

func (c *ImportCMD) Usage() string {
	return c.Name() + " --source <project.toml> [--force]:\n  " + c.Synopsis() + ".\n"
}

func (c *ImportCMD) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.Source, "source", "", "project file")
	f.BoolVar(&c.Force, "force", false, "reimport every asset")
}

func (c *ImportCMD) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.Source == "" {
		return usageError(c, f, "--source is required")
	}
	e, err := openEngine(engine.Config{ProjectFile: c.Source})
	if err != nil {
		logger.Error(err)
		return subcommands.ExitFailure
	}
	quitWhenFinished(e)
	e.Rescan(c.Force)
	return subcommands.ExitStatus(e.Run(ctx))
}
