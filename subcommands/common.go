package subcommands

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/spaghettifunk/anima-builder/engine"
	"github.com/spaghettifunk/anima-builder/engine/core"
)

// All returns the builder verbs in the order they are listed in the help.
func All() []subcommands.Command {
	return []subcommands.Command{
		&BuildCMD{},
		&ImportCMD{},
		&PackageCMD{},
		&WatchCMD{},
	}
}

var logger = core.NewLogger("CLI")

// usageError prints the command usage and its flags.
func usageError(cmd subcommands.Command, f *flag.FlagSet, msg string) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %s\n\n%s", cmd.Name(), msg, cmd.Usage())
	f.SetOutput(os.Stderr)
	f.PrintDefaults()
	return subcommands.ExitStatus(engine.ExitUsageError)
}

func openEngine(cfg engine.Config) (*engine.Engine, error) {
	e := engine.New(cfg)
	if err := e.Initialize(); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", cfg.ProjectFile, err)
	}
	return e, nil
}

// quitWhenFinished quits e with the outcome of the next pipeline.
func quitWhenFinished(e *engine.Engine) {
	e.Events().Register(core.EVENT_CODE_PIPELINE_FINISHED, e, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		if data.Success {
			e.Quit(engine.ExitSuccess)
		} else {
			e.Quit(engine.ExitFailure)
		}
		return false
	})
}
