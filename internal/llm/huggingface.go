package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"page-assist/internal/apperr"
)

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// buildHuggingFace targets POST {endpoint}/{model} with a single prompt field.
// The system prompt is prepended to the input since the API has no roles.
func buildHuggingFace(c Call) (*HTTPRequest, error) {
	const op = "llm.huggingface"
	if c.Endpoint == "" || c.Model == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "endpoint and model are required")
	}
	input := c.Prompt
	if c.SystemPrompt != "" {
		input = c.SystemPrompt + "\n\n" + c.Prompt
	}
	body, err := json.Marshal(hfRequest{
		Inputs: input,
		Parameters: hfParameters{
			MaxNewTokens:   c.MaxTokens,
			Temperature:    defaultTemperature,
			TopP:           defaultTopP,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode inference request: %w", err)
	}
	h := jsonHeader()
	if c.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.APIKey)
	}
	target := c.Endpoint
	if !strings.HasSuffix(target, "/"+c.Model) {
		target += "/" + (&url.URL{Path: c.Model}).EscapedPath()
	}
	return &HTTPRequest{Method: http.MethodPost, URL: target, Header: h, Body: body}, nil
}

// parseHuggingFace accepts [{"generated_text": ...}] or {"generated_text": ...}.
func parseHuggingFace(body []byte) (Completion, error) {
	const op = "llm.huggingface"
	if !gjson.ValidBytes(body) {
		return Completion{}, apperr.New(apperr.MalformedResponse, op, "response is not json")
	}
	path := "generated_text"
	if gjson.ParseBytes(body).IsArray() {
		path = "0.generated_text"
	}
	text := gjson.GetBytes(body, path)
	if text.Type != gjson.String {
		return Completion{}, apperr.New(apperr.MalformedResponse, op, "response has no generated_text")
	}
	return Completion{Answer: text.String()}, nil
}
