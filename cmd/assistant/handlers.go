package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"page-assist/internal/app"
	"page-assist/internal/apperr"
	"page-assist/internal/cachekey"
	"page-assist/internal/credentials"
	"page-assist/internal/httputil"
	"page-assist/internal/llm"
	"page-assist/internal/locale"
	"page-assist/internal/pipeline"
)

// providerSettings is the client's view of a provider. APIKey arrives sealed
// with the configured codec.
type providerSettings struct {
	ProviderID string `json:"providerId" validate:"omitempty,max=64"`
	Endpoint   string `json:"endpoint" validate:"omitempty,url"`
	Model      string `json:"model" validate:"omitempty,max=200"`
	APIKey     string `json:"apiKey" validate:"omitempty,max=4096"`
	MaxTokens  int    `json:"maxTokens" validate:"omitempty,min=1,max=200000"`
}

type askRequest struct {
	URL      string            `json:"url" validate:"required,url,max=4096"`
	Title    string            `json:"title" validate:"max=1000"`
	PageText string            `json:"pageText"`
	Question string            `json:"question" validate:"required,max=4000"`
	Locale   string            `json:"locale" validate:"max=16"`
	Strategy string            `json:"strategy" validate:"omitempty,oneof=hash url hybrid"`
	Provider *providerSettings `json:"provider"`
}

type validateRequest struct {
	Locale   string           `json:"locale" validate:"max=16"`
	Provider providerSettings `json:"provider"`
}

// open turns client settings into a plaintext provider config. A sealed key
// that fails to open is surfaced, never replaced by the default key.
func (s *providerSettings) open(codec credentials.Codec) (llm.ProviderConfig, error) {
	if s == nil {
		return llm.ProviderConfig{}, nil
	}
	key, err := credentials.Resolve(codec, s.APIKey, "")
	if err != nil {
		return llm.ProviderConfig{}, err
	}
	return llm.ProviderConfig{
		ProviderID: strings.TrimSpace(s.ProviderID),
		Endpoint:   strings.TrimSpace(s.Endpoint),
		Model:      strings.TrimSpace(s.Model),
		APIKey:     key,
		MaxTokens:  s.MaxTokens,
	}, nil
}

// replyLocale picks the language error messages are written in: the
// requested locale when supported, then Accept-Language, then the fallback.
func replyLocale(catalog *locale.Catalog, r *http.Request, requested string) string {
	if code, err := catalog.Normalize(requested); err == nil && strings.TrimSpace(requested) != "" {
		return code
	}
	for _, part := range strings.Split(r.Header.Get("Accept-Language"), ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if tag == "" || tag == "*" {
			continue
		}
		if code, err := catalog.Normalize(tag); err == nil {
			return code
		}
	}
	return locale.Fallback
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body askRequest
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, replyLocale(deps.Locales, r, ""), err)
			return
		}
		loc := replyLocale(deps.Locales, r, body.Locale)

		provider, err := body.Provider.open(deps.Codec)
		if err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, err)
			return
		}

		res, err := deps.Pipeline.Ask(r.Context(), pipeline.Request{
			URL:      body.URL,
			Title:    body.Title,
			PageText: body.PageText,
			Question: body.Question,
			Locale:   body.Locale,
			Strategy: body.Strategy,
			Provider: provider,
		})
		if err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func validateHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body validateRequest
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, replyLocale(deps.Locales, r, ""), err)
			return
		}
		loc := replyLocale(deps.Locales, r, body.Locale)

		override, err := body.Provider.open(deps.Codec)
		if err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, err)
			return
		}
		cfg := llm.Merge(deps.Provider, override)
		if err := deps.Dispatcher.Validate(r.Context(), cfg); err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"valid":      true,
			"providerId": cfg.ProviderID,
			"protocol":   llm.ProtocolFor(cfg.ProviderID).Name,
		})
	}
}

func keyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		loc := replyLocale(deps.Locales, r, q.Get("locale"))
		id := cachekey.Identity{URL: q.Get("url"), Title: q.Get("title"), Content: q.Get("content")}
		if strings.TrimSpace(id.URL) == "" {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, apperr.New(apperr.InvalidInput, "cache.key", "url is required"))
			return
		}
		key, err := deps.Pipeline.Key(id, q.Get("strategy"))
		if err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"key": key})
	}
}

func statsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"tiers": deps.Cache.Stats()})
	}
}

func sweepHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := deps.Cache.Sweep(r.Context())
		if err != nil {
			// partial sweeps still report what was removed
			deps.Log.Warn("cache sweep incomplete", "err", err)
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
	}
}

func deleteHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		loc := replyLocale(deps.Locales, r, r.URL.Query().Get("locale"))
		if !cachekey.Valid(key) {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, apperr.New(apperr.InvalidInput, "cache.delete", "invalid cache key"))
			return
		}
		if err := deps.Cache.Delete(r.Context(), key); err != nil {
			httputil.Fail(deps.Log, deps.Locales, w, r, loc, apperr.Wrap(apperr.Internal, "cache.delete", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
