// Package retry decides what happens to a crawl job after a failed attempt.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// Backoff schedule indexed by the number of attempts already made. Attempts
// past the end of the schedule reuse the final delay.
var backoffSchedule = []time.Duration{
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// DefaultMaxAge bounds how long after creation a job may keep retrying.
const DefaultMaxAge = 24 * time.Hour

// BackoffFor returns the delay before the next attempt after `attempts`
// failed tries.
func BackoffFor(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempts]
}

// Supervisor routes failed jobs to either a scheduled retry or a terminal
// failure, based on error class, retry budget, and job age.
type Supervisor struct {
	jobs   crawl.JobStore
	clock  crawl.Clock
	logger *zap.Logger
	maxAge time.Duration
}

// NewSupervisor constructs a Supervisor.
func NewSupervisor(jobs crawl.JobStore, clock crawl.Clock, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		jobs:   jobs,
		clock:  clock,
		logger: logger,
		maxAge: DefaultMaxAge,
	}
}

// HandleFailure disposes of a failed attempt. Non-retryable errors and
// exhausted or over-age jobs go terminal; everything else is rescheduled
// with backoff.
func (s *Supervisor) HandleFailure(ctx context.Context, job crawl.Job, jobErr error) error {
	now := s.clock.Now()
	kind := crawl.ClassifyError(jobErr)
	msg := jobErr.Error()

	switch {
	case !kind.IsRetryable():
		s.logger.Warn("job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("error_kind", string(kind)),
			zap.Error(jobErr),
		)
		return s.jobs.MarkFailed(ctx, job.ID, msg, now)

	case !job.CanRetry():
		s.logger.Warn("job retry budget exhausted",
			zap.String("job_id", job.ID),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(jobErr),
		)
		return s.jobs.MarkFailed(ctx, job.ID,
			fmt.Sprintf("retries exhausted after %d attempts: %s", job.RetryCount+1, msg), now)

	case now.Sub(job.CreatedAt) > s.maxAge:
		s.logger.Warn("job abandoned, retry window exceeded",
			zap.String("job_id", job.ID),
			zap.Time("created_at", job.CreatedAt),
			zap.Error(jobErr),
		)
		return s.jobs.MarkFailed(ctx, job.ID,
			fmt.Sprintf("retry window of %s exceeded: %s", s.maxAge, msg), now)
	}

	delay := BackoffFor(job.RetryCount)
	runAt := now.Add(delay)
	s.logger.Info("job scheduled for retry",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.RetryCount+1),
		zap.Duration("backoff", delay),
		zap.Error(jobErr),
	)
	return s.jobs.ScheduleRetry(ctx, job.ID, msg, runAt)
}
