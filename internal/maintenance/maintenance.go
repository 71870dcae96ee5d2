// Package maintenance bundles operator-facing job table upkeep.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// Default operational thresholds.
const (
	DefaultDaysToKeep = 7
	DefaultStuckAfter = time.Hour
)

// Service wraps the job store with cleanup, recovery, and reporting.
type Service struct {
	jobs   crawl.JobStore
	clock  crawl.Clock
	logger *zap.Logger
}

// New constructs a Service.
func New(jobs crawl.JobStore, clock crawl.Clock, logger *zap.Logger) *Service {
	return &Service{jobs: jobs, clock: clock, logger: logger}
}

// Cleanup removes terminal jobs older than daysToKeep. Failed jobs are kept
// for debugging unless includeFailed is set. With dryRun the candidates are
// only counted.
func (s *Service) Cleanup(ctx context.Context, daysToKeep int, includeFailed, dryRun bool) (int, error) {
	if daysToKeep <= 0 {
		daysToKeep = DefaultDaysToKeep
	}
	cutoff := s.clock.Now().AddDate(0, 0, -daysToKeep)
	n, err := s.jobs.DeleteTerminal(ctx, cutoff, includeFailed, dryRun)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	s.logger.Info("cleanup finished",
		zap.Int("jobs", n),
		zap.Time("cutoff", cutoff),
		zap.Bool("include_failed", includeFailed),
		zap.Bool("dry_run", dryRun),
	)
	return n, nil
}

// RetryFailed returns all failed jobs to pending with a fresh retry budget.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	n, err := s.jobs.ResetFailed(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	s.logger.Info("failed jobs reset to pending", zap.Int("jobs", n))
	return n, nil
}

// ResetStuck recovers jobs that have exceeded the stuck threshold: running
// jobs whose worker died mid-run are failed, and claimed jobs that never
// made it onto the queue are returned to the dispatchable pool.
func (s *Service) ResetStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	if stuckAfter <= 0 {
		stuckAfter = DefaultStuckAfter
	}
	now := s.clock.Now()
	n, err := s.jobs.ResetStuck(ctx, now.Add(-stuckAfter), now)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	if n > 0 {
		s.logger.Warn("stuck jobs failed", zap.Int("jobs", n), zap.Duration("stuck_after", stuckAfter))
	}
	return n, nil
}

// Stats reports the job table summary.
func (s *Service) Stats(ctx context.Context) (crawl.JobStats, error) {
	stats, err := s.jobs.Stats(ctx, DefaultStuckAfter, s.clock.Now())
	if err != nil {
		return crawl.JobStats{}, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}
