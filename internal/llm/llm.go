// Package llm sends prompts to interchangeable LLM providers. A provider id
// selects a protocol descriptor from a fixed table; the descriptor builds the
// HTTP request and parses the response, and the dispatcher executes exactly
// one call per request.
package llm

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultValidateTimeout = 10 * time.Second
	DefaultMaxTokens       = 1024

	defaultTemperature = 0.7
	defaultTopP        = 0.95
)

// ProviderConfig is built per request and never persisted here.
type ProviderConfig struct {
	ProviderID string `json:"providerId" validate:"omitempty,max=64"`
	Endpoint   string `json:"endpoint,omitempty" validate:"omitempty,url"`
	Model      string `json:"model,omitempty" validate:"omitempty,max=200"`
	APIKey     string `json:"-"`
	MaxTokens  int    `json:"maxTokens,omitempty" validate:"omitempty,min=1,max=200000"`
}

// Usage is the provider-reported token accounting, when available.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// Completion is a parsed provider answer.
type Completion struct {
	Answer string `json:"answer"`
	Usage  *Usage `json:"usage,omitempty"`
}

// Dispatcher is the provider-agnostic entry point used by the pipeline.
type Dispatcher interface {
	Send(ctx context.Context, prompt, systemPrompt string, cfg ProviderConfig) (Completion, error)
	Validate(ctx context.Context, cfg ProviderConfig) error
}

func newUsage(prompt, completion int64) *Usage {
	if prompt == 0 && completion == 0 {
		return nil
	}
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// Merge fills empty fields of override from base. A request naming a
// different provider does not inherit base's endpoint, model or key.
func Merge(base, override ProviderConfig) ProviderConfig {
	if override.ProviderID != "" && !strings.EqualFold(override.ProviderID, base.ProviderID) {
		return override
	}
	out := override
	if out.ProviderID == "" {
		out.ProviderID = base.ProviderID
	}
	if out.Endpoint == "" {
		out.Endpoint = base.Endpoint
	}
	if out.Model == "" {
		out.Model = base.Model
	}
	if out.APIKey == "" {
		out.APIKey = base.APIKey
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = base.MaxTokens
	}
	return out
}
