package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"page-assist/internal/cache"
	"page-assist/internal/cachekey"
	"page-assist/internal/config"
	"page-assist/internal/credentials"
	"page-assist/internal/extractor"
	"page-assist/internal/history"
	"page-assist/internal/llm"
	"page-assist/internal/locale"
	"page-assist/internal/logger"
	"page-assist/internal/pipeline"
	"page-assist/internal/prompt"
	"page-assist/internal/store"
	"page-assist/internal/synth"
)

// Deps bundles common runtime dependencies for the binaries.
type Deps struct {
	Config     config.Config
	Log        *slog.Logger
	Locales    *locale.Catalog
	Cache      *cache.TieredCache
	Extractor  extractor.Extractor
	Dispatcher llm.Dispatcher
	Codec      credentials.Codec
	History    history.Sink
	Pipeline   *pipeline.Pipeline
	// Provider is the configured default provider with its key opened.
	Provider llm.ProviderConfig

	closers []func() error
}

// Build loads .env (when present), config, and shared components.
func Build(ctx context.Context) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg, err := config.Parse()
	if err != nil {
		return Deps{}, err
	}
	return BuildWith(ctx, cfg, logger.New(cfg.LogLevel))
}

// BuildWith wires components from an already parsed config.
func BuildWith(ctx context.Context, cfg config.Config, log *slog.Logger) (Deps, error) {
	d := Deps{Config: cfg, Log: log, Locales: locale.Default()}

	codec, err := credentials.ByName(cfg.SecretCodec)
	if err != nil {
		return Deps{}, err
	}
	d.Codec = codec

	apiKey, err := credentials.Resolve(codec, cfg.ProviderAPIKey, cfg.DefaultAPIKey)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to open PROVIDER_API_KEY: %w", err)
	}
	d.Provider = llm.ProviderConfig{
		ProviderID: cfg.ProviderID,
		Endpoint:   cfg.ProviderEndpoint,
		Model:      cfg.ProviderModel,
		APIKey:     apiKey,
		MaxTokens:  cfg.ProviderMaxTokens,
	}

	strategy, err := cachekey.ByName(cfg.CacheStrategy)
	if err != nil {
		return Deps{}, err
	}

	local, err := buildLocalTier(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize local cache tier: %w", err)
	}
	durable, err := buildDurableTier(ctx, cfg, log)
	if err != nil {
		// the local tier alone still serves every request
		log.Warn("durable cache tier unavailable, continuing with local tier only", "err", err)
		durable = nil
	}
	d.Cache = cache.NewTiered(log, local, durable, cache.Options{
		LocalTTL:    cfg.LocalTTL,
		DurableTTL:  cfg.DurableTTL(),
		TierTimeout: cfg.TierTimeout,
		Scope:       cfg.CacheUserScope,
	})
	d.closers = append(d.closers, d.Cache.Close)

	ext, err := extractor.NewClient(log, cfg.ExtractorBaseURL, cfg.ProductName, cfg.ExtractorTimeout)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize extractor: %w", err)
	}
	d.Extractor = ext
	d.Dispatcher = llm.NewDispatcher(log, cfg.ProviderTimeout)

	sink, err := d.buildHistory(cfg, log)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize history sink: %w", err)
	}
	d.History = sink

	d.Pipeline = pipeline.New(log, pipeline.Deps{
		Cache:      d.Cache,
		Extractor:  d.Extractor,
		Prompts:    prompt.NewBuilder(d.Locales, cfg.ProductName, cfg.PromptMaxWords),
		Dispatcher: d.Dispatcher,
		Synth:      synth.New(d.Locales),
		Locales:    d.Locales,
		History:    d.History,
	}, pipeline.Options{
		Strategy:   strategy,
		ContentTTL: cfg.LocalTTL,
		Provider:   d.Provider,
		Scope:      cfg.CacheUserScope,
	})
	return d, nil
}

func buildLocalTier(cfg config.Config, log *slog.Logger) (cache.Tier, error) {
	switch cfg.LocalBackend {
	case "memory", "":
		log.Info("using in-memory local cache tier", "capacity", cfg.LocalCapacity)
		return cache.NewMemoryTier(cfg.LocalCapacity)
	case "sqlite":
		t, err := cache.NewSQLiteTier(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		log.Info("using SQLite local cache tier", "path", cfg.LocalPath)
		return t, nil
	case "none":
		log.Info("local cache tier disabled")
		return cache.NewNoOpTier(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_LOCAL_BACKEND: %s (valid options: memory, sqlite, none)", cfg.LocalBackend)
	}
}

func buildDurableTier(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Tier, error) {
	if !cfg.DurableEnabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.TierTimeout)
	defer cancel()

	switch cfg.DurableBackend {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when CACHE_DURABLE_BACKEND=postgres")
		}
		db, err := store.NewPostgres(ctx, cfg.DBURL, cfg.CacheTable)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres durable cache tier", "table", cfg.CacheTable)
		return db, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when CACHE_DURABLE_BACKEND=redis")
		}
		rdb, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		log.Info("using Redis durable cache tier")
		return rdb, nil
	default:
		return nil, fmt.Errorf("invalid CACHE_DURABLE_BACKEND: %s (valid options: postgres, redis)", cfg.DurableBackend)
	}
}

func (d *Deps) buildHistory(cfg config.Config, log *slog.Logger) (history.Sink, error) {
	switch cfg.HistoryProvider {
	case "none", "":
		return history.Noop{}, nil
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when HISTORY_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		d.closers = append(d.closers, func() error { return nc.Drain() })
		log.Info("using NATS history sink", "subject", cfg.HistorySubject)
		return history.NewNATS(log, nc, cfg.HistorySubject), nil
	default:
		return nil, fmt.Errorf("invalid HISTORY_PROVIDER: %s (valid options: none, nats)", cfg.HistoryProvider)
	}
}

// Close drains background work and releases connections.
func (d *Deps) Close() error {
	if d.Pipeline != nil {
		d.Pipeline.Wait()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
