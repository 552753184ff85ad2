package llm

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/tidwall/gjson"

	"page-assist/internal/apperr"
)

// buildOpenAI targets POST {endpoint}/chat/completions with bearer auth.
func buildOpenAI(c Call) (*HTTPRequest, error) {
	const op = "llm.openai"
	if c.Endpoint == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "endpoint is required for this provider")
	}
	if c.Model == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "model is required for this provider")
	}
	body, err := json.Marshal(openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.Model),
		Messages:    buildMessages(c.SystemPrompt, c.Prompt),
		MaxTokens:   openai.Int(int64(c.MaxTokens)),
		Temperature: openai.Float(defaultTemperature),
		TopP:        openai.Float(defaultTopP),
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat completion request: %w", err)
	}
	h := jsonHeader()
	if c.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.APIKey)
	}
	return &HTTPRequest{
		Method: http.MethodPost,
		URL:    withPath(c.Endpoint, "/chat/completions"),
		Header: h,
		Body:   body,
	}, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		})
	}
	return append(msgs, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(user),
			},
		},
	})
}

// parseOpenAI reads choices[0].message.content.
func parseOpenAI(body []byte) (Completion, error) {
	const op = "llm.openai"
	if !gjson.ValidBytes(body) || gjson.GetBytes(body, "choices.0.message.content").Type != gjson.String {
		return Completion{}, apperr.New(apperr.MalformedResponse, op, "response has no choices[0].message.content")
	}
	var resp openai.ChatCompletion
	if err := json.Unmarshal(body, &resp); err != nil {
		return Completion{}, apperr.Wrap(apperr.MalformedResponse, op, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, apperr.New(apperr.MalformedResponse, op, "openai: no choices returned")
	}
	return Completion{
		Answer: resp.Choices[0].Message.Content,
		Usage:  newUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}
