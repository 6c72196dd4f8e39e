package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dacraezy1/autorig/pkg/errors"
)

func main() {
	// SIGINT/SIGTERM cancel the run's context; the engine rolls back at
	// the next checkpoint instead of dying mid-mutation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var rigErr *errors.RigError
		if stderrors.As(err, &rigErr) {
			os.Exit(errors.ExitCode(err))
		}
		// Anything else came from flag or argument parsing.
		os.Exit(2)
	}
}
