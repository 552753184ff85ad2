package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"page-assist/internal/cachekey"
)

func newKeyCmd() *cobra.Command {
	var (
		title    string
		content  string
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "key <url>",
		Short: "Print the cache key a page is stored under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cachekey.ByName(strategy)
			if err != nil {
				return err
			}
			key, err := s.Derive(cachekey.Identity{URL: args[0], Title: title, Content: content})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "page title")
	cmd.Flags().StringVar(&content, "content", "", "page text, used by the hybrid strategy")
	cmd.Flags().StringVar(&strategy, "strategy", cachekey.NameHash, "key strategy: hash, url or hybrid")
	return cmd
}
