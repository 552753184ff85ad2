package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"page-assist/internal/app"
	"page-assist/internal/chunker"
	"page-assist/internal/llm"
	"page-assist/internal/pipeline"
)

func newFetchCmd() *cobra.Command {
	var maxWords int
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Extract the readable text of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(deps app.Deps) error {
				text, err := deps.Extractor.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if maxWords > 0 {
					clipped := chunker.Clip(text, chunker.Options{MaxTokens: maxWords})
					text = clipped.Text
					if clipped.Truncated {
						defer fmt.Fprintf(out, "\n[truncated to %d words]\n", clipped.TokenCount)
					}
				}
				fmt.Fprintln(out, text)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "clip the text to this many words (0 keeps everything)")
	return cmd
}

func newAskCmd() *cobra.Command {
	var (
		req      pipeline.Request
		provider llm.ProviderConfig
	)
	cmd := &cobra.Command{
		Use:   "ask <url> <question>",
		Short: "Ask a question about a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(deps app.Deps) error {
				req.URL, req.Question = args[0], args[1]
				req.Provider = provider
				res, err := deps.Pipeline.Ask(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, res.Answer)
				if len(res.Suggestions) > 0 {
					fmt.Fprintln(out)
					for i, s := range res.Suggestions {
						fmt.Fprintf(out, "%d. %s\n", i+1, s)
					}
				}
				if res.Usage != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "tokens: prompt=%d completion=%d cache_hit=%t\n",
						res.Usage.PromptTokens, res.Usage.CompletionTokens, res.CacheHit)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Title, "title", "", "page title")
	f.StringVar(&req.PageText, "page-text", "", "page text to use if extraction fails")
	f.StringVar(&req.Locale, "locale", "", "answer language (e.g. en, fr, de)")
	f.StringVar(&req.Strategy, "strategy", "", "cache key strategy override")
	providerFlags(cmd, &provider)
	return cmd
}

func newValidateCmd() *cobra.Command {
	var provider llm.ProviderConfig
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check provider credentials with one minimal request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(deps app.Deps) error {
				cfg := llm.Merge(deps.Provider, provider)
				if err := deps.Dispatcher.Validate(cmd.Context(), cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", cfg.ProviderID, llm.ProtocolFor(cfg.ProviderID).Name)
				return nil
			})
		},
	}
	providerFlags(cmd, &provider)
	return cmd
}

func providerFlags(cmd *cobra.Command, cfg *llm.ProviderConfig) {
	f := cmd.Flags()
	f.StringVar(&cfg.ProviderID, "provider", "", "provider id (defaults to PROVIDER_ID)")
	f.StringVar(&cfg.Endpoint, "endpoint", "", "provider endpoint override")
	f.StringVar(&cfg.Model, "model", "", "model override")
	f.StringVar(&cfg.APIKey, "api-key", "", "plaintext API key override")
	f.IntVar(&cfg.MaxTokens, "max-tokens", 0, "completion token limit")
}
