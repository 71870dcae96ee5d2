// Package app_test contains unit tests for the app container wiring.
package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifysource/newscrawler/internal/app"
	"github.com/verifysource/newscrawler/internal/config"
)

func baseConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 60},
		Crawler: config.CrawlerConfig{
			Workers:         2,
			QueueDepth:      16,
			BatchSize:       5,
			DispatchSeconds: 1,
			StoreProvider:   config.ProviderMemory,
		},
		Fetch:   config.FetchConfig{TimeoutSeconds: 10},
		Archive: config.ArchiveConfig{Provider: config.ProviderMemory, Prefix: "pages"},
		PubSub:  config.PubSubConfig{Provider: config.ProviderMemory, Topic: "article.created"},
	}
}

func TestNewWiresMemoryBackends(t *testing.T) {
	cfg := baseConfig()
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Jobs)
	assert.NotNil(t, a.Articles)
	assert.NotNil(t, a.Sources)
	assert.NotNil(t, a.Queue)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Dispatch)
	assert.NotNil(t, a.Maintain)
	assert.NotNil(t, a.Server)
	assert.Len(t, a.Workers, 2)
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "unknown store",
			mutate: func(c *config.Config) { c.Crawler.StoreProvider = "etcd" },
			want:   "unknown store provider",
		},
		{
			name:   "unknown archive",
			mutate: func(c *config.Config) { c.Archive.Provider = "s3" },
			want:   "unknown archive provider",
		},
		{
			name:   "unknown pubsub",
			mutate: func(c *config.Config) { c.PubSub.Provider = "kafka" },
			want:   "unknown pubsub provider",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			_, err := app.New(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNoopSideChannels(t *testing.T) {
	cfg := baseConfig()
	cfg.Archive.Provider = config.ProviderNoop
	cfg.PubSub.Provider = config.ProviderNoop

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	a.Close()
}
