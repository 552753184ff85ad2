package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"page-assist/internal/apperr"
	"page-assist/internal/config"
	"page-assist/internal/history"
)

func baseConfig() config.Config {
	return config.Config{
		ProductName:       "page-assist",
		ExtractorBaseURL:  "http://127.0.0.1:1",
		ExtractorTimeout:  time.Second,
		ProviderID:        "openai",
		ProviderMaxTokens: 256,
		SecretCodec:       "plain",
		CacheStrategy:     "hash",
		RetentionDays:     7,
		LocalBackend:      "memory",
		LocalCapacity:     8,
		LocalTTL:          time.Hour,
		TierTimeout:       time.Second,
		HistoryProvider:   "none",
	}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildWithDefaults(t *testing.T) {
	cfg := baseConfig()
	cfg.DefaultAPIKey = "sk-default"

	d, err := BuildWith(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.Pipeline)
	assert.NotNil(t, d.Cache)
	assert.IsType(t, history.Noop{}, d.History)
	assert.Equal(t, "sk-default", d.Provider.APIKey)
	require.Len(t, d.Cache.Stats(), 1, "only the local tier is configured")
}

func TestBuildWithSQLiteLocalTier(t *testing.T) {
	cfg := baseConfig()
	cfg.LocalBackend = "sqlite"
	cfg.LocalPath = filepath.Join(t.TempDir(), "cache.db")

	d, err := BuildWith(context.Background(), cfg, quiet())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Cache.Stats()[0].Tier)
	require.NoError(t, d.Close())
}

func TestBuildWithLocalTierDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.LocalBackend = "none"

	d, err := BuildWith(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer d.Close()

	require.Len(t, d.Cache.Stats(), 1)
	assert.Equal(t, "noop", d.Cache.Stats()[0].Tier)
	d.Cache.Put(context.Background(), "k", "v", time.Minute)
	_, ok := d.Cache.Get(context.Background(), "k")
	assert.False(t, ok, "a disabled local tier keeps nothing")
}

func TestBuildWithUnreachableDurableTierDegrades(t *testing.T) {
	cfg := baseConfig()
	cfg.DurableEnabled = true
	cfg.DurableBackend = "postgres"
	cfg.DBURL = ""

	d, err := BuildWith(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer d.Close()
	assert.Len(t, d.Cache.Stats(), 1)
}

func TestBuildWithRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"strategy", func(c *config.Config) { c.CacheStrategy = "fuzzy" }},
		{"local backend", func(c *config.Config) { c.LocalBackend = "tape" }},
		{"history provider", func(c *config.Config) { c.HistoryProvider = "kafka" }},
		{"nats without url", func(c *config.Config) { c.HistoryProvider = "nats" }},
		{"extractor url", func(c *config.Config) { c.ExtractorBaseURL = "::" }},
		{"codec", func(c *config.Config) { c.SecretCodec = "rot13" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			_, err := BuildWith(context.Background(), cfg, quiet())
			assert.Error(t, err)
		})
	}
}

func TestBuildWithSurfacesUndecodableKey(t *testing.T) {
	cfg := baseConfig()
	cfg.SecretCodec = "base64"
	cfg.ProviderAPIKey = "%%%"
	cfg.DefaultAPIKey = "sk-default"

	_, err := BuildWith(context.Background(), cfg, quiet())
	assert.ErrorIs(t, err, apperr.SecretDecode)
}
