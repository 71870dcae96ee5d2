package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 30
auth:
  enabled: true
  api_key: secret
crawler:
  workers: 6
  queue_depth: 128
  batch_size: 25
  dispatch_seconds: 5
  store_provider: postgres
fetch:
  user_agent: real-agent
  timeout_seconds: 45
db:
  dsn: postgres://crawler:pw@localhost:5432/crawler
  max_conns: 16
archive:
  provider: gcs
  gcs_bucket: bucket
  prefix: raw
pubsub:
  provider: pubsub
  project_id: proj-1
  topic: articles
logging:
  development: false
maintenance:
  days_to_keep: 14
  stuck_after_minutes: 30
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.Workers != 6 || cfg.Crawler.BatchSize != 25 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.StoreProvider != ProviderPostgres || cfg.DB.DSN == "" {
		t.Fatalf("expected postgres store config: %+v", cfg.DB)
	}
	if cfg.Archive.Provider != ProviderGCS || cfg.Archive.GCSBucket != "bucket" {
		t.Fatalf("expected gcs archive config: %+v", cfg.Archive)
	}
	if cfg.PubSub.Topic != "articles" {
		t.Fatalf("expected pubsub topic override, got %q", cfg.PubSub.Topic)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.DispatchInterval(); got != 5*time.Second {
		t.Fatalf("expected dispatch interval 5s, got %v", got)
	}
	if got := cfg.StuckAfter(); got != 30*time.Minute {
		t.Fatalf("expected stuck threshold 30m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.StoreProvider != ProviderMemory {
		t.Fatalf("expected memory store default, got %q", cfg.Crawler.StoreProvider)
	}
	if cfg.Crawler.BatchSize != 10 || cfg.Crawler.DispatchSeconds != 10 {
		t.Fatalf("expected dispatch defaults: %+v", cfg.Crawler)
	}
	if cfg.Archive.Provider != ProviderNoop || cfg.PubSub.Provider != ProviderNoop {
		t.Fatalf("expected noop side-channel defaults: %+v", cfg)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Workers: 1, QueueDepth: 16, StoreProvider: ProviderMemory},
		Fetch:   FetchConfig{TimeoutSeconds: 10},
		Archive: ArchiveConfig{Provider: ProviderNoop},
		PubSub:  PubSubConfig{Provider: ProviderNoop},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Crawler.Workers = 0
				return c
			}(),
			want: "crawler.workers",
		},
		{
			name: "invalid fetch timeout",
			cfg: func() Config {
				c := base
				c.Fetch.TimeoutSeconds = 0
				return c
			}(),
			want: "fetch.timeout_seconds",
		},
		{
			name: "postgres store without dsn",
			cfg: func() Config {
				c := base
				c.Crawler.StoreProvider = ProviderPostgres
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "unknown store provider",
			cfg: func() Config {
				c := base
				c.Crawler.StoreProvider = "etcd"
				return c
			}(),
			want: "crawler.store_provider",
		},
		{
			name: "gcs archive without bucket",
			cfg: func() Config {
				c := base
				c.Archive.Provider = ProviderGCS
				return c
			}(),
			want: "archive.gcs_bucket",
		},
		{
			name: "pubsub without project",
			cfg: func() Config {
				c := base
				c.PubSub.Provider = ProviderPubSub
				return c
			}(),
			want: "pubsub.project_id",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
