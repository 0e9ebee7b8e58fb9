package subcommands

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/spaghettifunk/anima-builder/engine"
)

// PackageCMD writes the imported assets of a project into an archive
// without importing or building anything.
type PackageCMD struct {
	Source   string
	Target   string
	Platform string
	Compress bool
}

func (*PackageCMD) Name() string     { return "package" }
func (*PackageCMD) Synopsis() string { return "package the imported assets of a project" }

func (c *PackageCMD) Usage() string {
	return c.Name() + " --source <project.toml> --target <dir> [--platform <name>]:\n  " + c.Synopsis() + ".\n"
}

func (c *PackageCMD) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.Source, "source", "", "project file")
	f.StringVar(&c.Target, "target", "", "directory receiving the package")
	f.StringVar(&c.Platform, "platform", "", "platform whose import directory is packaged")
	f.BoolVar(&c.Compress, "compress", false, "deflate the package entries")
}

func (c *PackageCMD) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.Source == "" || c.Target == "" {
		return usageError(c, f, "--source and --target are required")
	}
	if err := os.MkdirAll(c.Target, 0o755); err != nil {
		logger.Error(err)
		return subcommands.ExitFailure
	}

	e, err := openEngine(engine.Config{ProjectFile: c.Source, CompressPackage: c.Compress})
	if err != nil {
		logger.Error(err)
		return subcommands.ExitFailure
	}
	if c.Platform != "" {
		if err := e.SetCurrentPlatform(c.Platform); err != nil {
			e.Quit(engine.ExitUsageError)
			e.Run(ctx)
			return usageError(c, f, fmt.Sprint(err))
		}
	}

	e.Post(func() {
		path, err := e.Packager().Package(c.Target)
		if err != nil {
			logger.Error(err)
			e.Quit(engine.ExitFailure)
			return
		}
		logger.Infof("wrote %s", path)
		e.Quit(engine.ExitSuccess)
	})
	return subcommands.ExitStatus(e.Run(ctx))
}
