// Package pipeline answers a question about a page: it resolves page text
// through the content cache (extracting on a miss), builds the prompt, calls
// the provider and splits the reply into answer and suggestions.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"page-assist/internal/apperr"
	"page-assist/internal/cache"
	"page-assist/internal/cachekey"
	"page-assist/internal/extractor"
	"page-assist/internal/history"
	"page-assist/internal/llm"
	"page-assist/internal/locale"
	"page-assist/internal/prompt"
	"page-assist/internal/synth"
)

const defaultHistoryTimeout = 10 * time.Second

// ContentCache is the part of cache.TieredCache the pipeline uses.
type ContentCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string, ttl time.Duration, opts ...cache.PutOption)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Cache      ContentCache
	Extractor  extractor.Extractor
	Prompts    *prompt.Builder
	Dispatcher llm.Dispatcher
	Synth      *synth.Synthesizer
	Locales    *locale.Catalog
	History    history.Sink
}

// Options is the immutable configuration a Pipeline is built with.
type Options struct {
	// Strategy derives cache keys when a request names none.
	Strategy cachekey.Strategy
	// ContentTTL is passed to every cache Put; zero uses the cache default.
	ContentTTL time.Duration
	// Provider is used for requests that carry no provider settings.
	Provider llm.ProviderConfig
	// Scope tags history records.
	Scope          string
	HistoryTimeout time.Duration
}

// Request is one question about one page.
type Request struct {
	URL      string
	Title    string
	// PageText is text the client already extracted. It feeds the hybrid
	// key strategy and stands in for the extraction service when that fails.
	PageText string
	Question string
	Locale   string
	Strategy string
	// Provider overrides Options.Provider. APIKey must already be plaintext.
	Provider llm.ProviderConfig
}

// Result is the answer to a Request.
type Result struct {
	Answer      string     `json:"answer"`
	Suggestions []string   `json:"suggestions"`
	Usage       *llm.Usage `json:"usage,omitempty"`
	CacheHit    bool       `json:"cacheHit"`
	SiteType    string     `json:"siteType"`
	Locale      string     `json:"locale"`
	Key         string     `json:"key"`
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	log  *slog.Logger
	deps Deps
	opts Options

	group   singleflight.Group
	pending sync.WaitGroup
}

// New builds a Pipeline. A nil History discards exchanges.
func New(log *slog.Logger, deps Deps, opts Options) *Pipeline {
	if opts.Strategy == nil {
		opts.Strategy = cachekey.Default
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = defaultHistoryTimeout
	}
	if deps.History == nil {
		deps.History = history.Noop{}
	}
	return &Pipeline{log: log.With("component", "pipeline"), deps: deps, opts: opts}
}

// Key derives the cache key for id with the named strategy (empty selects
// the configured one).
func (p *Pipeline) Key(id cachekey.Identity, strategy string) (string, error) {
	s := p.opts.Strategy
	if strings.TrimSpace(strategy) != "" {
		var err error
		if s, err = cachekey.ByName(strategy); err != nil {
			return "", err
		}
	}
	return s.Derive(id)
}

// Ask runs the full pipeline. Input errors are rejected before any I/O;
// extraction errors surface only when the cache misses and the request has
// no page text; provider errors always surface.
func (p *Pipeline) Ask(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, apperr.New(apperr.InvalidInput, "pipeline.Ask", "question is empty")
	}
	key, err := p.Key(cachekey.Identity{URL: req.URL, Title: req.Title, Content: req.PageText}, req.Strategy)
	if err != nil {
		return Result{}, err
	}
	loc, err := p.deps.Locales.Normalize(req.Locale)
	if err != nil {
		return Result{}, err
	}

	text, hit, err := p.content(ctx, key, req)
	if err != nil {
		return Result{}, err
	}

	built, err := p.deps.Prompts.Build(prompt.Input{
		URL:      req.URL,
		Title:    req.Title,
		PageText: text,
		Question: req.Question,
		Locale:   loc,
	})
	if err != nil {
		return Result{}, err
	}

	provider := llm.Merge(p.opts.Provider, req.Provider)
	completion, err := p.deps.Dispatcher.Send(ctx, built.User, built.System, provider)
	if err != nil {
		return Result{}, err
	}

	split := p.deps.Synth.Split(completion.Answer, built.Locale, built.SiteType)
	res := Result{
		Answer:      split.Answer,
		Suggestions: split.Suggestions,
		Usage:       completion.Usage,
		CacheHit:    hit,
		SiteType:    built.SiteType,
		Locale:      built.Locale,
		Key:         key,
	}
	p.record(ctx, req, provider, res)
	return res, nil
}

type content struct {
	text string
	hit  bool
}

// content resolves page text for key. Concurrent misses on one key share a
// single extraction that no caller's cancellation can abort; each caller
// still stops waiting when its own ctx ends, and the page-text fallback is
// applied per caller.
func (p *Pipeline) content(ctx context.Context, key string, req Request) (string, bool, error) {
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (any, error) {
		if text, ok := p.deps.Cache.Get(shared, key); ok {
			return content{text: text, hit: true}, nil
		}
		text, err := p.deps.Extractor.Fetch(shared, req.URL)
		if err != nil {
			return nil, err
		}
		p.deps.Cache.Put(shared, key, text, p.opts.ContentTTL, cache.WithSourceURL(req.URL))
		return content{text: text}, nil
	})

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case r := <-ch:
		if r.Err == nil {
			c := r.Val.(content)
			return c.text, c.hit, nil
		}
		if strings.TrimSpace(req.PageText) == "" {
			return "", false, r.Err
		}
		p.log.Warn("extraction failed, using page text from request", "url", req.URL, "err", r.Err)
		p.deps.Cache.Put(ctx, key, req.PageText, p.opts.ContentTTL, cache.WithSourceURL(req.URL))
		return req.PageText, false, nil
	}
}

// record hands the exchange to the history sink without blocking the answer.
func (p *Pipeline) record(ctx context.Context, req Request, provider llm.ProviderConfig, res Result) {
	ex := history.Exchange{
		Scope:       p.opts.Scope,
		URL:         req.URL,
		Title:       req.Title,
		Question:    req.Question,
		Answer:      res.Answer,
		Suggestions: res.Suggestions,
		Locale:      res.Locale,
		SiteType:    res.SiteType,
		ProviderID:  provider.ProviderID,
		Model:       provider.Model,
		CacheHit:    res.CacheHit,
	}
	if res.Usage != nil {
		ex.PromptTokens = res.Usage.PromptTokens
		ex.CompletionTokens = res.Usage.CompletionTokens
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.HistoryTimeout)
		defer cancel()
		if err := p.deps.History.Record(hctx, ex); err != nil {
			p.log.Warn("history record failed", "url", req.URL, "err", err)
		}
	}()
}

// Wait blocks until in-flight history records finish.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}
