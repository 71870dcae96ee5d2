// Package dispatcher moves claimed jobs from the store onto the queue and
// fans queue work out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
	"github.com/verifysource/newscrawler/internal/worker"
)

// Lane is the queue lane claimed jobs are dispatched onto.
const Lane = "crawling"

// Config controls dispatch batching and cadence.
type Config struct {
	BatchSize int
	Interval  time.Duration
}

// Dispatcher claims due pending jobs and enqueues them for execution.
type Dispatcher struct {
	jobs    crawl.JobStore
	queue   crawl.Queue
	workers []*worker.Worker
	clock   crawl.Clock
	cfg     Config
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(jobs crawl.JobStore, queue crawl.Queue, workers []*worker.Worker, clock crawl.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Dispatcher{
		jobs:    jobs,
		queue:   queue,
		workers: workers,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// DispatchBatch claims one batch of due jobs and enqueues them. The claim
// stamps dispatchedAt in the store, so a job handed out here can never be
// handed out again by a concurrent or later pass.
func (d *Dispatcher) DispatchBatch(ctx context.Context) (int, error) {
	claimed, err := d.jobs.ClaimPending(ctx, d.cfg.BatchSize, d.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("claim pending: %w", err)
	}
	for i, job := range claimed {
		item := crawl.QueueItem{Job: job, Lane: Lane, Attempt: job.RetryCount}
		if err := d.queue.Enqueue(ctx, item); err != nil {
			// Claimed but not enqueued: these jobs stay stamped until the
			// stuck-job sweep clears the stamp and they become claimable
			// again.
			return i, fmt.Errorf("enqueue job %s: %w", job.ID, err)
		}
		d.logger.Debug("dispatched job",
			zap.String("job_id", job.ID),
			zap.String("url", job.URL),
			zap.Int("priority", job.Priority),
		)
	}
	if len(claimed) > 0 {
		d.logger.Info("dispatched batch", zap.Int("count", len(claimed)))
	}
	return len(claimed), nil
}

// RunLoop dispatches batches on the configured interval until the context
// finishes. One immediate batch runs before the first tick.
func (d *Dispatcher) RunLoop(ctx context.Context) error {
	if _, err := d.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("dispatch batch failed", zap.Error(err))
	}
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("dispatch batch failed", zap.Error(err))
			}
		}
	}
}

// Run starts all workers plus the dispatch loop and blocks until the
// context finishes and the workers drain.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = d.RunLoop(ctx)
	}()
	<-ctx.Done()
	wg.Wait()
}
