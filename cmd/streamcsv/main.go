package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oleg578/streamcsv/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Commands report their own errors; cobra prints usage errors.
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
