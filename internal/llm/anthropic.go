package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"page-assist/internal/apperr"
)

const anthropicVersion = "2023-06-01"

// buildAnthropic targets POST {endpoint}/messages with the x-api-key header
// and a top-level system field.
func buildAnthropic(c Call) (*HTTPRequest, error) {
	const op = "llm.anthropic"
	if c.Endpoint == "" || c.Model == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "endpoint and model are required")
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.Model),
		MaxTokens:   int64(c.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(c.Prompt))},
		Temperature: anthropic.Float(defaultTemperature),
	}
	if c.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: c.SystemPrompt},
		}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode messages request: %w", err)
	}
	h := jsonHeader()
	h.Set("anthropic-version", anthropicVersion)
	if c.APIKey != "" {
		h.Set("x-api-key", c.APIKey)
	}
	return &HTTPRequest{
		Method: http.MethodPost,
		URL:    withPath(c.Endpoint, "/messages"),
		Header: h,
		Body:   body,
	}, nil
}

// parseAnthropic joins the text blocks of content[].
func parseAnthropic(body []byte) (Completion, error) {
	const op = "llm.anthropic"
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, `content.#(type=="text").text`).Exists() {
		return Completion{}, apperr.New(apperr.MalformedResponse, op, "response has no text content block")
	}
	var message anthropic.Message
	if err := json.Unmarshal(body, &message); err != nil {
		return Completion{}, apperr.Wrap(apperr.MalformedResponse, op, err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		}
	}
	return Completion{
		Answer: content.String(),
		Usage:  newUsage(message.Usage.InputTokens, message.Usage.OutputTokens),
	}, nil
}
