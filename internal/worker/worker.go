// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
	"github.com/verifysource/newscrawler/internal/discovery"
	"github.com/verifysource/newscrawler/internal/extract"
	"github.com/verifysource/newscrawler/internal/fingerprint"
	"github.com/verifysource/newscrawler/internal/metrics"
	"github.com/verifysource/newscrawler/internal/retry"
)

// Config controls Worker behavior.
type Config struct {
	// Topic is the event topic for newly created articles. Empty disables
	// publishing.
	Topic         string
	BlobPrefix    string
	ContentType   string
	JobTimeout    time.Duration
	SourceTimeout time.Duration
}

// Worker consumes queue items and executes the crawl pipeline:
// discovery jobs expand one seed into article jobs, article jobs run
// fetch, extract, fingerprint, dedup, and persist.
type Worker struct {
	queue      crawl.Queue
	jobs       crawl.JobStore
	articles   crawl.ArticleStore
	sources    crawl.SourceStore
	fetcher    crawl.Fetcher
	engine     *discovery.Engine
	blobs      crawl.BlobStore
	publisher  crawl.Publisher
	supervisor *retry.Supervisor
	clock      crawl.Clock
	ids        crawl.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. The blob store and publisher are optional;
// everything else is required.
func New(
	queue crawl.Queue,
	jobs crawl.JobStore,
	articles crawl.ArticleStore,
	sources crawl.SourceStore,
	fetcher crawl.Fetcher,
	engine *discovery.Engine,
	blobs crawl.BlobStore,
	publisher crawl.Publisher,
	supervisor *retry.Supervisor,
	clock crawl.Clock,
	ids crawl.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 300 * time.Second
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 600 * time.Second
	}
	metrics.Init()
	return &Worker{
		queue:      queue,
		jobs:       jobs,
		articles:   articles,
		sources:    sources,
		fetcher:    fetcher,
		engine:     engine,
		blobs:      blobs,
		publisher:  publisher,
		supervisor: supervisor,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.Job.ID),
			zap.String("lane", item.Lane),
		)
		metrics.IncActiveWorkers()
		w.Execute(ctx, item.Job)
		metrics.DecActiveWorkers()
	}
}

// Execute runs one job end to end, including retry disposition on failure.
func (w *Worker) Execute(ctx context.Context, job crawl.Job) crawl.Result {
	started := w.clock.Now()
	if err := w.jobs.MarkRunning(ctx, job.ID, started); err != nil {
		// Usually a duplicate delivery of an already-handled job.
		w.logger.Warn("job not runnable", zap.String("job_id", job.ID), zap.Error(err))
		return crawl.Result{JobID: job.ID, Err: err}
	}

	crawlType := job.CrawlType()
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout(job))
	defer cancel()

	var result crawl.Result
	if crawlType == crawl.CrawlTypeArticle {
		result = w.runArticle(jobCtx, job)
	} else {
		result = w.runDiscovery(jobCtx, job)
	}
	result.JobID = job.ID

	if result.Err != nil {
		metrics.ObserveJob("failed", crawlType, w.clock.Now().Sub(started))
		if err := w.supervisor.HandleFailure(ctx, job, result.Err); err != nil {
			w.logger.Error("retry disposition failed", zap.String("job_id", job.ID), zap.Error(err))
		} else if crawl.ClassifyError(result.Err).IsRetryable() && job.CanRetry() {
			metrics.ObserveRetry()
		}
		return result
	}

	meta := map[string]string{}
	if result.URLsDiscovered > 0 {
		meta["urls_discovered"] = fmt.Sprintf("%d", result.URLsDiscovered)
	}
	if result.ArticlesCreated > 0 {
		meta["articles_created"] = fmt.Sprintf("%d", result.ArticlesCreated)
	}
	if result.Duplicate {
		meta["duplicate"] = "true"
	}
	if err := w.jobs.MarkCompleted(ctx, job.ID, meta, w.clock.Now()); err != nil {
		w.logger.Error("complete job failed", zap.String("job_id", job.ID), zap.Error(err))
		result.Err = err
		return result
	}
	metrics.ObserveJob("completed", crawlType, w.clock.Now().Sub(started))
	return result
}

// jobTimeout picks the execution budget for a job. Whole-source jobs crawl
// an entire site and get the long budget; everything else, discovery
// included, runs on the per-job timeout.
func (w *Worker) jobTimeout(job crawl.Job) time.Duration {
	if job.CrawlType() == crawl.CrawlTypeSource {
		return w.cfg.SourceTimeout
	}
	return w.cfg.JobTimeout
}

// runDiscovery expands one seed URL into pending article jobs.
func (w *Worker) runDiscovery(ctx context.Context, job crawl.Job) crawl.Result {
	source, err := w.sources.GetSource(ctx, job.SourceID)
	if err != nil {
		// Discovery can proceed without source details; robots seeding
		// just records the raw source ID.
		source = crawl.Source{ID: job.SourceID}
	}

	candidates := w.engine.Discover(ctx, job.URL, source)
	if ctx.Err() != nil {
		return crawl.Result{Err: ctx.Err()}
	}
	metrics.ObserveDiscovery(job.URL, len(candidates))

	created := 0
	now := w.clock.Now()
	for _, candidate := range candidates {
		id, err := w.ids.NewID()
		if err != nil {
			return crawl.Result{URLsDiscovered: len(candidates), Err: crawl.NewExecutionError(fmt.Errorf("generate job id: %w", err))}
		}
		_, inserted, err := w.jobs.CreateJob(ctx, crawl.Job{
			ID:       id,
			SourceID: job.SourceID,
			URL:      candidate,
			Status:   crawl.JobStatusPending,
			Priority: crawl.DefaultPriority,
			Metadata: map[string]string{
				crawl.MetaCrawlType:      crawl.CrawlTypeArticle,
				crawl.MetaDiscoveredFrom: job.URL,
			},
			MaxRetries:  crawl.DefaultMaxRetries,
			CreatedAt:   now,
			ScheduledAt: now,
		})
		if err != nil {
			return crawl.Result{URLsDiscovered: len(candidates), Err: crawl.NewExecutionError(fmt.Errorf("create article job: %w", err))}
		}
		if inserted {
			created++
		}
	}

	w.logger.Info("discovery job finished",
		zap.String("job_id", job.ID),
		zap.String("seed", job.URL),
		zap.Int("candidates", len(candidates)),
		zap.Int("jobs_created", created),
	)
	return crawl.Result{URLsDiscovered: len(candidates)}
}

// runArticle fetches one page, extracts the article, fingerprints it, and
// persists it with duplicate marking.
func (w *Worker) runArticle(ctx context.Context, job crawl.Job) crawl.Result {
	resp, err := w.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		return crawl.Result{Err: err}
	}
	metrics.ObserveFetch(job.URL, len(resp.Body))

	extracted, err := extract.FromResponse(resp)
	if err != nil {
		return crawl.Result{Err: err}
	}

	fp := fingerprint.New(extracted.Content)

	var blobURI string
	if w.blobs != nil {
		blobURI, err = w.blobs.PutObject(ctx, w.buildBlobPath(job.SourceID, fp.Hash), w.cfg.ContentType, resp.Body)
		if err != nil {
			// Archival is best effort; the article row is the source of truth.
			w.logger.Warn("archive page failed", zap.String("job_id", job.ID), zap.Error(err))
			blobURI = ""
		}
	}

	original, found, err := w.articles.FindByHash(ctx, fp.Hash)
	if err != nil {
		return crawl.Result{Err: crawl.NewExecutionError(fmt.Errorf("dedup lookup: %w", err))}
	}
	duplicate := found && original.URL != job.URL

	id, err := w.ids.NewID()
	if err != nil {
		return crawl.Result{Err: crawl.NewExecutionError(fmt.Errorf("generate article id: %w", err))}
	}

	meta := extracted.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	if from := job.Metadata[crawl.MetaDiscoveredFrom]; from != "" {
		meta[crawl.MetaDiscoveredFrom] = from
	}
	if blobURI != "" {
		meta["blob_uri"] = blobURI
	}
	if duplicate {
		meta["duplicate_of"] = original.ID
	}

	article := crawl.Article{
		ID:          id,
		SourceID:    job.SourceID,
		JobID:       job.ID,
		URL:         job.URL,
		Title:       extracted.Title,
		Content:     extracted.Content,
		Excerpt:     extracted.Excerpt,
		ContentHash: fp.Hash,
		WordCount:   extracted.WordCount,
		Language:    extracted.Language,
		IsDuplicate: duplicate,
		FetchedAt:   w.clock.Now(),
		Metadata:    meta,
	}
	stored, err := w.articles.UpsertArticle(ctx, article)
	if err != nil {
		return crawl.Result{Err: crawl.NewExecutionError(fmt.Errorf("persist article: %w", err))}
	}
	metrics.ObserveArticle(duplicate)

	if duplicate {
		w.logger.Info("duplicate article",
			zap.String("job_id", job.ID),
			zap.String("url", job.URL),
			zap.String("original_url", original.URL),
			zap.String("hash", fp.Hash),
		)
		return crawl.Result{ArticlesCreated: 1, Duplicate: true}
	}

	if err := w.publishArticleCreated(ctx, stored); err != nil {
		return crawl.Result{Err: err}
	}
	w.logger.Info("article created",
		zap.String("job_id", job.ID),
		zap.String("article_id", stored.ID),
		zap.String("url", stored.URL),
		zap.Int("word_count", stored.WordCount),
	)
	return crawl.Result{ArticlesCreated: 1}
}

func (w *Worker) publishArticleCreated(ctx context.Context, article crawl.Article) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"article_id": article.ID,
		"source_id":  article.SourceID,
		"url":        article.URL,
		"title":      article.Title,
		"hash":       article.ContentHash,
		"word_count": article.WordCount,
		"timestamp":  w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return crawl.NewExecutionError(fmt.Errorf("publish article event: %w", err))
	}
	return nil
}

func (w *Worker) buildBlobPath(sourceID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", sourceID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, sourceID, hash)
}
