package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/rman/internal/cmd"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/exitcode"
)

func main() {
	// Create a context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := exec.NewRegistry()
	go func() {
		<-ctx.Done()
		registry.KillAll()
	}()

	err := cmd.ExecuteContext(ctx, registry)
	registry.KillAll()

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled")
			exitcode.Exit(exitcode.Cancelled)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitcode.ExitWithError(err)
	}
	exitcode.Exit(exitcode.Success)
}
