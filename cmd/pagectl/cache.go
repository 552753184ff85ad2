package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"page-assist/internal/app"
	"page-assist/internal/cachekey"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the content cache",
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired entries from every tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(deps app.Deps) error {
				removed, err := deps.Cache.Sweep(cmd.Context())
				tiers := make([]string, 0, len(removed))
				for name := range removed {
					tiers = append(tiers, name)
				}
				sort.Strings(tiers)
				for _, name := range tiers {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d removed\n", name, removed[name])
				}
				return err
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Invalidate one key in every tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cachekey.Valid(args[0]) {
				return fmt.Errorf("%q is not a cache key (want %d lowercase hex characters)", args[0], cachekey.Length)
			}
			return withDeps(cmd, func(deps app.Deps) error {
				if err := deps.Cache.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(sweepCmd, deleteCmd)
	return cmd
}
