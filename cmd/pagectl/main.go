package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"page-assist/internal/app"
)

var version = "dev"

// buildDeps is replaced in tests.
var buildDeps = app.Build

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagectl",
		Short:         "Operate the page assistant from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newKeyCmd(),
		newFetchCmd(),
		newAskCmd(),
		newValidateCmd(),
		newCacheCmd(),
		newHistoryCmd(),
	)
	return root
}

// withDeps builds the runtime, runs fn and closes everything afterwards.
func withDeps(cmd *cobra.Command, fn func(app.Deps) error) error {
	deps, err := buildDeps(cmd.Context())
	if err != nil {
		return err
	}
	runErr := fn(deps)
	if err := deps.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
