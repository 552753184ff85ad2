package llm

import (
	"net/http"
	"sort"
	"strings"
)

// ProtocolName identifies one request/response shape.
type ProtocolName string

const (
	OpenAICompatible     ProtocolName = "openai-compatible"
	AnthropicMessages    ProtocolName = "anthropic"
	HuggingFaceInference ProtocolName = "huggingface"
)

// Call is the input to a protocol's request builder.
type Call struct {
	Prompt       string
	SystemPrompt string
	Model        string
	APIKey       string
	Endpoint     string
	MaxTokens    int
}

// HTTPRequest is a fully built provider request.
type HTTPRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Protocol is a stateless request builder and response parser pair.
type Protocol struct {
	Name  ProtocolName
	Build func(Call) (*HTTPRequest, error)
	Parse func(body []byte) (Completion, error)
}

var protocols = map[ProtocolName]Protocol{
	OpenAICompatible:     {Name: OpenAICompatible, Build: buildOpenAI, Parse: parseOpenAI},
	AnthropicMessages:    {Name: AnthropicMessages, Build: buildAnthropic, Parse: parseAnthropic},
	HuggingFaceInference: {Name: HuggingFaceInference, Build: buildHuggingFace, Parse: parseHuggingFace},
}

type provider struct {
	protocol ProtocolName
	endpoint string
	model    string
}

// providers maps a provider id to its protocol and defaults. Adding a
// provider is one entry here.
var providers = map[string]provider{
	"openai":      {OpenAICompatible, "https://api.openai.com/v1", "gpt-4o-mini"},
	"deepseek":    {OpenAICompatible, "https://api.deepseek.com/v1", "deepseek-chat"},
	"groq":        {OpenAICompatible, "https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
	"mistral":     {OpenAICompatible, "https://api.mistral.ai/v1", "mistral-small-latest"},
	"openrouter":  {OpenAICompatible, "https://openrouter.ai/api/v1", ""},
	"together":    {OpenAICompatible, "https://api.together.xyz/v1", ""},
	"xai":         {OpenAICompatible, "https://api.x.ai/v1", ""},
	"perplexity":  {OpenAICompatible, "https://api.perplexity.ai", "sonar"},
	"ollama":      {OpenAICompatible, "http://localhost:11434/v1", ""},
	"lmstudio":    {OpenAICompatible, "http://localhost:1234/v1", ""},
	"anthropic":   {AnthropicMessages, "https://api.anthropic.com/v1", "claude-3-5-haiku-latest"},
	"claude":      {AnthropicMessages, "https://api.anthropic.com/v1", "claude-3-5-haiku-latest"},
	"huggingface": {HuggingFaceInference, "https://api-inference.huggingface.co/models", ""},
	"hf":          {HuggingFaceInference, "https://api-inference.huggingface.co/models", ""},
}

// unknown ids are treated as OpenAI-compatible endpoints with no defaults.
var fallbackProvider = provider{protocol: OpenAICompatible}

func lookupProvider(id string) provider {
	if p, ok := providers[strings.ToLower(strings.TrimSpace(id))]; ok {
		return p
	}
	return fallbackProvider
}

// ProtocolFor returns the protocol used for a provider id. It is total:
// unrecognized ids get OpenAICompatible.
func ProtocolFor(providerID string) Protocol {
	return protocols[lookupProvider(providerID).protocol]
}

// ProviderIDs lists the known provider ids, sorted.
func ProviderIDs() []string {
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// resolve fills endpoint, model and token defaults for cfg.
func resolve(cfg ProviderConfig) Call {
	p := lookupProvider(cfg.ProviderID)
	c := Call{
		Endpoint:  strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		Model:     strings.TrimSpace(cfg.Model),
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
	}
	if c.Endpoint == "" {
		c.Endpoint = p.endpoint
	}
	if c.Model == "" {
		c.Model = p.model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

func withPath(endpoint, path string) string {
	if strings.HasSuffix(endpoint, path) {
		return endpoint
	}
	return endpoint + path
}
