package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/spaghettifunk/anima-builder/engine"
	"github.com/spaghettifunk/anima-builder/engine/core"
	cmds "github.com/spaghettifunk/anima-builder/subcommands"
)

func main() {
	logLevel := flag.String("log-level", "info", "debug, info, warn, error or fatal")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	for _, c := range cmds.All() {
		subcommands.Register(c, "")
	}
	subcommands.ImportantFlag("log-level")

	flag.Parse()
	if err := core.SetLogLevel(*logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(engine.ExitUsageError)
	}
	core.LogDebug("anima-builder %s", engine.Version)

	ctx, cancel := context.WithCancel(context.Background())

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// cancelling makes the running command shut the engine down
	go func() {
		<-sigCh
		cancel()
	}()

	ret := subcommands.Execute(ctx)
	cancel()
	os.Exit(int(ret))
}
