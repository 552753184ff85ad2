package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"page-assist/internal/apperr"
)

const (
	maxResponseBytes = 4 << 20
	validatePrompt   = "Reply with OK."
	validateTokens   = 5
)

// HTTPDispatcher executes protocol requests over HTTP. It holds no state
// besides its client and is safe for concurrent use.
type HTTPDispatcher struct {
	http            *http.Client
	timeout         time.Duration
	validateTimeout time.Duration
	log             *slog.Logger
}

// NewDispatcher returns a dispatcher bounding each call by timeout
// (DefaultTimeout when zero).
func NewDispatcher(log *slog.Logger, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDispatcher{
		http:            &http.Client{},
		timeout:         timeout,
		validateTimeout: DefaultValidateTimeout,
		log:             log.With("component", "dispatcher"),
	}
}

// Send runs one completion. Failures are classified as InvalidCredentials,
// RateLimited, UpstreamUnavailable, RequestRejected, Unreachable or
// MalformedResponse.
func (d *HTTPDispatcher) Send(ctx context.Context, prompt, systemPrompt string, cfg ProviderConfig) (Completion, error) {
	call := resolve(cfg)
	call.Prompt = prompt
	call.SystemPrompt = systemPrompt
	return d.do(ctx, ProtocolFor(cfg.ProviderID), call, d.timeout)
}

// Validate sends a minimal completion to check endpoint, model and key.
func (d *HTTPDispatcher) Validate(ctx context.Context, cfg ProviderConfig) error {
	call := resolve(cfg)
	call.Prompt = validatePrompt
	call.MaxTokens = validateTokens
	_, err := d.do(ctx, ProtocolFor(cfg.ProviderID), call, d.validateTimeout)
	return err
}

func (d *HTTPDispatcher) do(ctx context.Context, proto Protocol, call Call, timeout time.Duration) (Completion, error) {
	op := "llm." + string(proto.Name)

	built, err := proto.Build(call)
	if err != nil {
		return Completion{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, built.Method, built.URL, bytes.NewReader(built.Body))
	if err != nil {
		return Completion{}, apperr.Wrap(apperr.InvalidInput, op, err)
	}
	req.Header = built.Header

	start := time.Now()
	resp, err := d.http.Do(req)
	if err != nil {
		return Completion{}, apperr.Wrap(apperr.Unreachable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Completion{}, apperr.Wrap(apperr.Unreachable, op, err)
		}
		return Completion{}, apperr.Wrap(apperr.MalformedResponse, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Completion{}, statusError(op, resp.StatusCode, body)
	}

	out, err := proto.Parse(body)
	if err != nil {
		return Completion{}, err
	}
	d.log.Debug("completion received",
		"protocol", proto.Name,
		"model", call.Model,
		"elapsed", time.Since(start),
		"answer_len", len(out.Answer),
	)
	return out, nil
}

func statusError(op string, status int, body []byte) error {
	var kind apperr.Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = apperr.InvalidCredentials
	case status == http.StatusTooManyRequests:
		kind = apperr.RateLimited
	case status >= 500:
		kind = apperr.UpstreamUnavailable
	default:
		kind = apperr.RequestRejected
	}
	msg := fmt.Sprintf("provider returned %d", status)
	if detail := providerMessage(body); detail != "" {
		msg += ": " + detail
	}
	e := apperr.New(kind, op, msg)
	e.Status = status
	return e
}

// providerMessage digs a human-readable message out of the common error
// envelopes ({"error":{"message"}}, {"error":"..."}, {"message"}, {"detail"}).
func providerMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
