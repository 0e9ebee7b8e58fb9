package subcommands

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/spaghettifunk/anima-builder/engine"
)

// BuildCMD deploys a project to a target directory for one or every
// platform of the project.
type BuildCMD struct {
	Source   string
	Target   string
	Platform string
	Compress bool
}

func (*BuildCMD) Name() string     { return "build" }
func (*BuildCMD) Synopsis() string { return "import, compile and deploy a project" }

func (c *BuildCMD) Usage() string {
	return c.Name() + " --source <project.toml> --target <dir> [--platform <name>]:\n" +
		"  " + c.Synopsis() + ". Every platform of the project is built when\n" +
		"  --platform is omitted.\n"
}

func (c *BuildCMD) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.Source, "source", "", "project file")
	f.StringVar(&c.Target, "target", "", "deployment directory")
	f.StringVar(&c.Platform, "platform", "", "single platform to build")
	f.BoolVar(&c.Compress, "compress", false, "deflate the asset package")
}

func (c *BuildCMD) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.Source == "" || c.Target == "" {
		return usageError(c, f, "--source and --target are required")
	}

	e, err := openEngine(engine.Config{
		ProjectFile:     c.Source,
		TargetPath:      c.Target,
		CompressPackage: c.Compress,
	})
	if err != nil {
		logger.Error(err)
		return subcommands.ExitFailure
	}
	batch, err := engine.NewBatchBuilder(e)
	if err != nil {
		logger.Error(err)
		return subcommands.ExitFailure
	}
	if err := batch.SetPlatform(c.Platform); err != nil {
		e.Quit(engine.ExitUsageError)
		e.Run(ctx)
		return usageError(c, f, fmt.Sprint(err))
	}
	return subcommands.ExitStatus(e.Run(ctx))
}
