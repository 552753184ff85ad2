package llm

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"page-assist/internal/apperr"
)

func newTestDispatcher(timeout time.Duration) *HTTPDispatcher {
	return NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), timeout)
}

func readBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return b
}

const openAIReply = `{"id":"c1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"The answer."}}],
"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`

func TestSendOpenAICompatible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body := readBody(t, r)
		assert.Equal(t, "gpt-test", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "be brief", gjson.GetBytes(body, "messages.0.content").String())
		assert.Equal(t, "what is this?", gjson.GetBytes(body, "messages.1.content").String())
		assert.Equal(t, int64(256), gjson.GetBytes(body, "max_tokens").Int())
		assert.True(t, gjson.GetBytes(body, "temperature").Exists())
		assert.True(t, gjson.GetBytes(body, "top_p").Exists())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openAIReply))
	}))
	defer srv.Close()

	got, err := newTestDispatcher(time.Second).Send(context.Background(), "what is this?", "be brief", ProviderConfig{
		ProviderID: "openai",
		Endpoint:   srv.URL + "/v1/",
		Model:      "gpt-test",
		APIKey:     "sk-test",
		MaxTokens:  256,
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", got.Answer)
	require.NotNil(t, got.Usage)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, *got.Usage)
}

func TestUnknownProviderDefaultsToOpenAICompatible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(openAIReply))
	}))
	defer srv.Close()

	got, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "", ProviderConfig{
		ProviderID: "my-local-gateway",
		Endpoint:   srv.URL,
		Model:      "local",
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", got.Answer)
}

func TestSendAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key-a", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))

		body := readBody(t, r)
		assert.Equal(t, "claude-test", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "be brief", gjson.GetBytes(body, "system.0.text").String())
		assert.Equal(t, "what is this?", gjson.GetBytes(body, "messages.0.content.0.text").String())
		assert.Equal(t, int64(DefaultMaxTokens), gjson.GetBytes(body, "max_tokens").Int())

		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there."}],
"stop_reason":"end_turn","usage":{"input_tokens":9,"output_tokens":2}}`))
	}))
	defer srv.Close()

	got, err := newTestDispatcher(time.Second).Send(context.Background(), "what is this?", "be brief", ProviderConfig{
		ProviderID: "anthropic",
		Endpoint:   srv.URL + "/v1",
		Model:      "claude-test",
		APIKey:     "key-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", got.Answer)
	require.NotNil(t, got.Usage)
	assert.Equal(t, int64(11), got.Usage.TotalTokens)
}

func TestSendHuggingFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/org/model-7b", r.URL.Path)
		assert.Equal(t, "Bearer hf_x", r.Header.Get("Authorization"))

		body := readBody(t, r)
		assert.Equal(t, "sys\n\nq", gjson.GetBytes(body, "inputs").String())
		assert.Equal(t, int64(64), gjson.GetBytes(body, "parameters.max_new_tokens").Int())
		assert.False(t, gjson.GetBytes(body, "parameters.return_full_text").Bool())

		_, _ = w.Write([]byte(`[{"generated_text":"generated"}]`))
	}))
	defer srv.Close()

	got, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "sys", ProviderConfig{
		ProviderID: "huggingface",
		Endpoint:   srv.URL + "/models",
		Model:      "org/model-7b",
		APIKey:     "hf_x",
		MaxTokens:  64,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated", got.Answer)
	assert.Nil(t, got.Usage)
}

func TestSendClassifiesHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   apperr.Kind
	}{
		{http.StatusUnauthorized, apperr.InvalidCredentials},
		{http.StatusForbidden, apperr.InvalidCredentials},
		{http.StatusTooManyRequests, apperr.RateLimited},
		{http.StatusInternalServerError, apperr.UpstreamUnavailable},
		{http.StatusServiceUnavailable, apperr.UpstreamUnavailable},
		{http.StatusBadRequest, apperr.RequestRejected},
		{http.StatusNotFound, apperr.RequestRejected},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"provider says no"}}`))
			}))
			defer srv.Close()

			_, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "", ProviderConfig{
				ProviderID: "openai", Endpoint: srv.URL, Model: "m",
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var e *apperr.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.status, e.Status)
			assert.Contains(t, e.Error(), "provider says no")
		})
	}
}

func TestSendRateLimitedIsNotGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "", ProviderConfig{
		ProviderID: "anthropic", Endpoint: srv.URL, Model: "m",
	})
	assert.Equal(t, apperr.RateLimited, apperr.KindOf(err))
}

func TestSendMalformedResponses(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		body     string
	}{
		{"openai empty choices", "openai", `{"choices":[]}`},
		{"openai not json", "openai", `<html>oops</html>`},
		{"openai null content", "openai", `{"choices":[{"message":{"content":null}}]}`},
		{"anthropic no text block", "anthropic", `{"content":[]}`},
		{"huggingface wrong shape", "huggingface", `{"outputs":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "", ProviderConfig{
				ProviderID: tt.provider, Endpoint: srv.URL, Model: "m",
			})
			assert.ErrorIs(t, err, apperr.MalformedResponse)
		})
	}
}

func TestSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "", ProviderConfig{
		ProviderID: "openai", Endpoint: endpoint, Model: "m",
	})
	assert.ErrorIs(t, err, apperr.Unreachable)
}

func TestSendTimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestDispatcher(50*time.Millisecond).Send(context.Background(), "q", "", ProviderConfig{
		ProviderID: "openai", Endpoint: srv.URL, Model: "m",
	})
	assert.ErrorIs(t, err, apperr.Unreachable)
}

func TestSendRequiresModelWithoutProviderDefault(t *testing.T) {
	_, err := newTestDispatcher(time.Second).Send(context.Background(), "q", "", ProviderConfig{
		ProviderID: "ollama",
	})
	assert.ErrorIs(t, err, apperr.InvalidInput)
}

func TestValidateSendsMinimalRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readBody(t, r)
		assert.Equal(t, int64(validateTokens), gjson.GetBytes(body, "max_tokens").Int())
		assert.Equal(t, validatePrompt, gjson.GetBytes(body, "messages.0.content").String())
		_, _ = w.Write([]byte(openAIReply))
	}))
	defer srv.Close()

	d := newTestDispatcher(time.Second)
	require.NoError(t, d.Validate(context.Background(), ProviderConfig{ProviderID: "groq", Endpoint: srv.URL}))
}

func TestProtocolForIsTotal(t *testing.T) {
	tests := []struct {
		id   string
		want ProtocolName
	}{
		{"openai", OpenAICompatible},
		{"deepseek", OpenAICompatible},
		{"Anthropic", AnthropicMessages},
		{" claude ", AnthropicMessages},
		{"hf", HuggingFaceInference},
		{"", OpenAICompatible},
		{"something-new", OpenAICompatible},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProtocolFor(tt.id).Name, tt.id)
	}
	for _, id := range ProviderIDs() {
		p := ProtocolFor(id)
		assert.NotNil(t, p.Build, id)
		assert.NotNil(t, p.Parse, id)
	}
}
