// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the cobra commands.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/api"
	"github.com/verifysource/newscrawler/internal/archive/gcs"
	archivemem "github.com/verifysource/newscrawler/internal/archive/memory"
	clocksys "github.com/verifysource/newscrawler/internal/clock/system"
	"github.com/verifysource/newscrawler/internal/config"
	"github.com/verifysource/newscrawler/internal/crawl"
	"github.com/verifysource/newscrawler/internal/discovery"
	"github.com/verifysource/newscrawler/internal/dispatcher"
	"github.com/verifysource/newscrawler/internal/fetch"
	"github.com/verifysource/newscrawler/internal/id/uuid"
	"github.com/verifysource/newscrawler/internal/logging"
	"github.com/verifysource/newscrawler/internal/maintenance"
	pubmem "github.com/verifysource/newscrawler/internal/publisher/memory"
	pubgcp "github.com/verifysource/newscrawler/internal/publisher/pubsub"
	queuemem "github.com/verifysource/newscrawler/internal/queue/memory"
	"github.com/verifysource/newscrawler/internal/retry"
	storemem "github.com/verifysource/newscrawler/internal/store/memory"
	storepg "github.com/verifysource/newscrawler/internal/store/postgres"
	"github.com/verifysource/newscrawler/internal/worker"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and handed to the commands that need it.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger

	Jobs     crawl.JobStore
	Articles crawl.ArticleStore
	Sources  crawl.SourceStore
	Queue    *queuemem.Queue
	Fetcher  crawl.Fetcher
	Engine   *discovery.Engine
	Seeder   *discovery.StoreSeeder
	Workers  []*worker.Worker
	Dispatch *dispatcher.Dispatcher
	Maintain *maintenance.Service
	Server   *api.Server
	Clock    crawl.Clock
	IDs      crawl.IDGenerator

	blobs        crawl.BlobStore
	publisher    crawl.Publisher
	pool         *pgxpool.Pool
	pubsubClient *pubsub.Client
	gcsClient    *gstorage.Client
	pubsubPub    *pubgcp.Publisher
}

// New builds the full service graph from configuration. It fails fast if
// any backend cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Clock:  clocksys.New(),
		IDs:    uuid.New(),
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initSideChannels(ctx); err != nil {
		return nil, err
	}

	a.Queue = queuemem.NewQueue(cfg.Crawler.QueueDepth)
	a.Fetcher = fetch.New(fetch.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		PerDomainRPS: cfg.Fetch.PerDomainRPS,
		Burst:        cfg.Fetch.Burst,
	})
	a.Seeder = discovery.NewStoreSeeder(a.Jobs, a.IDs, a.Clock)
	a.Engine = discovery.New(a.Fetcher, a.Seeder, logger)

	supervisor := retry.NewSupervisor(a.Jobs, a.Clock, logger)
	// The blob store owns the archive prefix; the worker only builds the
	// source/hash part of the object path.
	workerCfg := worker.Config{
		Topic:         cfg.PubSub.Topic,
		ContentType:   cfg.Archive.ContentType,
		JobTimeout:    secondsOrZero(cfg.Crawler.JobTimeoutSeconds),
		SourceTimeout: secondsOrZero(cfg.Crawler.SourceTimeoutSeconds),
	}
	for i := 0; i < cfg.Crawler.Workers; i++ {
		a.Workers = append(a.Workers, worker.New(
			a.Queue, a.Jobs, a.Articles, a.Sources,
			a.Fetcher, a.Engine, a.blobs, a.publisher,
			supervisor, a.Clock, a.IDs, workerCfg,
			logger.With(zap.Int("worker", i)),
		))
	}

	a.Dispatch = dispatcher.New(a.Jobs, a.Queue, a.Workers, a.Clock, dispatcher.Config{
		BatchSize: cfg.Crawler.BatchSize,
		Interval:  cfg.DispatchInterval(),
	}, logger)
	a.Maintain = maintenance.New(a.Jobs, a.Clock, logger)
	a.Server = api.NewServer(a.Jobs, a.Sources, a.Maintain, a.IDs, a.Clock, api.Config{
		APIKey:         apiKey(cfg),
		RequestTimeout: cfg.ServerTimeout(),
	}, logger)

	logger.Info("application services initialized",
		zap.String("store", cfg.Crawler.StoreProvider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("pubsub", cfg.PubSub.Provider),
		zap.Int("workers", cfg.Crawler.Workers),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.Cfg.Crawler.StoreProvider {
	case config.ProviderPostgres:
		pool, err := storepg.NewPool(ctx, storepg.PoolConfig{
			DSN:      a.Cfg.DB.DSN,
			MaxConns: int32(a.Cfg.DB.MaxConns),
			MinConns: int32(a.Cfg.DB.MinConns),
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		jobs, err := storepg.NewJobStoreWithPool(pool)
		if err != nil {
			return err
		}
		articles, err := storepg.NewArticleStoreWithPool(pool)
		if err != nil {
			return err
		}
		sources, err := storepg.NewSourceStoreWithPool(pool)
		if err != nil {
			return err
		}
		a.Jobs, a.Articles, a.Sources = jobs, articles, sources
	case config.ProviderMemory:
		a.Jobs = storemem.NewJobStore()
		a.Articles = storemem.NewArticleStore()
		a.Sources = storemem.NewSourceStore()
	default:
		return fmt.Errorf("unknown store provider: %s", a.Cfg.Crawler.StoreProvider)
	}
	return nil
}

func (a *App) initSideChannels(ctx context.Context) error {
	switch a.Cfg.Archive.Provider {
	case config.ProviderGCS:
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("connect gcs: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcs.New(client, gcs.Config{
			Bucket: a.Cfg.Archive.GCSBucket,
			Prefix: a.Cfg.Archive.Prefix,
		})
		if err != nil {
			return err
		}
		a.blobs = blobs
	case config.ProviderMemory:
		a.blobs = archivemem.NewBlobStore()
	case config.ProviderNoop:
		a.blobs = nil
	default:
		return fmt.Errorf("unknown archive provider: %s", a.Cfg.Archive.Provider)
	}

	switch a.Cfg.PubSub.Provider {
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, a.Cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		a.pubsubClient = client
		pub, err := pubgcp.New(client)
		if err != nil {
			return err
		}
		a.pubsubPub = pub
		a.publisher = pub
	case config.ProviderMemory:
		a.publisher = pubmem.New()
	case config.ProviderNoop:
		a.publisher = nil
	default:
		return fmt.Errorf("unknown pubsub provider: %s", a.Cfg.PubSub.Provider)
	}
	return nil
}

// DispatcherWith returns a dispatcher sharing this container's stores and
// worker pool but with overridden batching knobs. Zero values keep the
// configured defaults.
func (a *App) DispatcherWith(batchSize int, interval time.Duration) *dispatcher.Dispatcher {
	cfg := dispatcher.Config{
		BatchSize: a.Cfg.Crawler.BatchSize,
		Interval:  a.Cfg.DispatchInterval(),
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	if interval > 0 {
		cfg.Interval = interval
	}
	return dispatcher.New(a.Jobs, a.Queue, a.Workers, a.Clock, cfg, a.Logger)
}

// Close gracefully shuts down all services in the container. It is called
// by a cobra hook after the command finishes.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	a.Queue.Close()
	if a.pubsubPub != nil {
		a.pubsubPub.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("closing gcs client", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Logger.Sync()
}

func apiKey(cfg config.Config) string {
	if !cfg.Auth.Enabled {
		return ""
	}
	return cfg.Auth.APIKey
}

func secondsOrZero(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}
