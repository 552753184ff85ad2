package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"page-assist/internal/app"
	"page-assist/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded exchanges",
	}
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print exchanges as JSON lines while they are recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(deps app.Deps) error {
				sink, ok := deps.History.(*history.NATSSink)
				if !ok {
					return errors.New("history tail needs HISTORY_PROVIDER=nats")
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				return sink.Subscribe(cmd.Context(), func(_ context.Context, ex history.Exchange) error {
					return enc.Encode(ex)
				})
			})
		},
	}
	cmd.AddCommand(tailCmd)
	return cmd
}
