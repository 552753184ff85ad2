package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"page-assist/internal/cache"
)

// Config holds runtime configuration. It is parsed once and passed by value.
type Config struct {
	// Server
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ProductName string `env:"PRODUCT_NAME" envDefault:"page-assist"`

	// Extraction service
	ExtractorBaseURL string        `env:"EXTRACTOR_BASE_URL" envDefault:"https://r.jina.ai"`
	ExtractorTimeout time.Duration `env:"EXTRACTOR_TIMEOUT" envDefault:"30s"`

	// Provider
	ProviderID        string        `env:"PROVIDER_ID" envDefault:"openai"`
	ProviderEndpoint  string        `env:"PROVIDER_ENDPOINT"`
	ProviderModel     string        `env:"PROVIDER_MODEL"`
	ProviderAPIKey    string        `env:"PROVIDER_API_KEY"` // sealed with SECRET_CODEC
	DefaultAPIKey     string        `env:"DEFAULT_API_KEY"`
	SecretCodec       string        `env:"SECRET_CODEC" envDefault:"plain"` // "plain" or "base64"
	ProviderMaxTokens int           `env:"PROVIDER_MAX_TOKENS" envDefault:"1024"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	PromptMaxWords    int           `env:"PROMPT_MAX_WORDS" envDefault:"3000"`

	// Durable cache tier
	DurableEnabled bool   `env:"CACHE_DURABLE_ENABLED" envDefault:"false"`
	DurableBackend string `env:"CACHE_DURABLE_BACKEND" envDefault:"postgres"` // "postgres" or "redis"
	DBURL          string `env:"DB_URL"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	CacheTable     string `env:"CACHE_TABLE" envDefault:"content_cache"`
	CacheUserScope string `env:"CACHE_USER_SCOPE"`
	CacheStrategy  string `env:"CACHE_STRATEGY" envDefault:"hash"` // "hash", "url" or "hybrid"
	RetentionDays  int    `env:"CACHE_RETENTION_DAYS" envDefault:"7"`

	// Local cache tier
	LocalBackend  string        `env:"CACHE_LOCAL_BACKEND" envDefault:"memory"` // "memory" or "sqlite"
	LocalPath     string        `env:"CACHE_LOCAL_PATH" envDefault:"page-cache.db"`
	LocalCapacity int           `env:"CACHE_LOCAL_CAPACITY" envDefault:"512"`
	LocalTTL      time.Duration `env:"CACHE_LOCAL_TTL" envDefault:"1h"`
	TierTimeout   time.Duration `env:"CACHE_TIER_TIMEOUT" envDefault:"10s"`
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"15m"`

	// History
	HistoryProvider string `env:"HISTORY_PROVIDER" envDefault:"none"` // "none" or "nats"
	QueueURL        string `env:"QUEUE_URL"`
	HistorySubject  string `env:"HISTORY_SUBJECT" envDefault:"history.exchanges"`
}

// Parse reads configuration from environment variables with defaults and
// reports malformed values.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DurableTTL is the clamped lifetime of durable-tier entries.
func (c Config) DurableTTL() time.Duration {
	return cache.DurableTTL(c.RetentionDays)
}
