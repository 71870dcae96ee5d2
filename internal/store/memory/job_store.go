// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// JobStore keeps crawl jobs in a mutex-guarded map. The single lock makes
// every update an atomic compare-and-set, which is what the dispatch stamp
// contract requires.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]crawl.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]crawl.Job),
	}
}

// CreateJob inserts a job unless an active one exists for (sourceID, url).
func (s *JobStore) CreateJob(_ context.Context, job crawl.Job) (crawl.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.SourceID == job.SourceID && existing.URL == job.URL && !existing.IsTerminal() {
			return existing, false, nil
		}
	}
	if job.ID == "" {
		return crawl.Job{}, false, fmt.Errorf("job id is required")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return crawl.Job{}, false, fmt.Errorf("job %s already exists", job.ID)
	}
	if job.Status == "" {
		job.Status = crawl.JobStatusPending
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = crawl.DefaultMaxRetries
	}
	s.jobs[job.ID] = job
	return job, true, nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawl.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawl.Job{}, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

// ClaimPending selects dispatchable jobs and stamps dispatchedAt under the
// store lock, so two concurrent dispatch passes can never claim one job twice.
func (s *JobStore) ClaimPending(_ context.Context, limit int, now time.Time) ([]crawl.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := make([]crawl.Job, 0, limit)
	for _, job := range s.jobs {
		if job.Status != crawl.JobStatusPending || job.DispatchedAt != nil {
			continue
		}
		if !job.ScheduledAt.IsZero() && job.ScheduledAt.After(now) {
			continue
		}
		eligible = append(eligible, job)
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	stamp := now
	for i := range eligible {
		eligible[i].DispatchedAt = &stamp
		s.jobs[eligible[i].ID] = eligible[i]
	}
	return eligible, nil
}

// MarkRunning transitions a job to running.
func (s *JobStore) MarkRunning(_ context.Context, jobID string, now time.Time) error {
	return s.transition(jobID, crawl.JobStatusRunning, func(job *crawl.Job) {
		job.StartedAt = &now
	})
}

// MarkCompleted transitions a job to completed and merges result metadata.
func (s *JobStore) MarkCompleted(_ context.Context, jobID string, metadata map[string]string, now time.Time) error {
	return s.transition(jobID, crawl.JobStatusCompleted, func(job *crawl.Job) {
		job.CompletedAt = &now
		if len(metadata) > 0 {
			if job.Metadata == nil {
				job.Metadata = make(map[string]string, len(metadata))
			}
			for k, v := range metadata {
				job.Metadata[k] = v
			}
		}
	})
}

// MarkFailed transitions a job to terminal failed.
func (s *JobStore) MarkFailed(_ context.Context, jobID string, errMsg string, now time.Time) error {
	return s.transition(jobID, crawl.JobStatusFailed, func(job *crawl.Job) {
		job.ErrorMessage = truncateError(errMsg)
		job.CompletedAt = &now
	})
}

// ScheduleRetry returns a running job to pending with an incremented retry
// counter, cleared dispatch stamp, and a future due time.
func (s *JobStore) ScheduleRetry(_ context.Context, jobID string, errMsg string, runAt time.Time) error {
	return s.transition(jobID, crawl.JobStatusPending, func(job *crawl.Job) {
		job.RetryCount++
		job.ErrorMessage = truncateError(errMsg)
		job.DispatchedAt = nil
		job.StartedAt = nil
		job.ScheduledAt = runAt
	})
}

// Stats summarizes the job table.
func (s *JobStore) Stats(_ context.Context, stuckAfter time.Duration, now time.Time) (crawl.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats crawl.JobStats
	var completionTotal time.Duration
	var completionCount int
	for _, job := range s.jobs {
		switch job.Status {
		case crawl.JobStatusPending:
			stats.Pending++
		case crawl.JobStatusRunning:
			stats.Running++
			if job.StartedAt != nil && now.Sub(*job.StartedAt) > stuckAfter {
				stats.Stuck++
			}
		case crawl.JobStatusCompleted:
			stats.Completed++
			if job.StartedAt != nil && job.CompletedAt != nil {
				completionTotal += job.CompletedAt.Sub(*job.StartedAt)
				completionCount++
			}
		case crawl.JobStatusFailed:
			stats.Failed++
		}
	}
	if terminal := stats.Completed + stats.Failed; terminal > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(terminal)
	}
	if completionCount > 0 {
		stats.AvgCompletionSeconds = completionTotal.Seconds() / float64(completionCount)
	}
	return stats, nil
}

// DeleteTerminal removes (or, for dry-run, counts) old terminal jobs.
func (s *JobStore) DeleteTerminal(_ context.Context, cutoff time.Time, includeFailed bool, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, job := range s.jobs {
		if !job.IsTerminal() || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		if job.Status == crawl.JobStatusFailed && !includeFailed {
			continue
		}
		count++
		if !dryRun {
			delete(s.jobs, id)
		}
	}
	return count, nil
}

// ResetFailed returns failed jobs to pending with a fresh retry budget.
func (s *JobStore) ResetFailed(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, job := range s.jobs {
		if job.Status != crawl.JobStatusFailed {
			continue
		}
		job.Status = crawl.JobStatusPending
		job.RetryCount = 0
		job.DispatchedAt = nil
		job.StartedAt = nil
		job.CompletedAt = nil
		job.ScheduledAt = now
		s.jobs[id] = job
		count++
	}
	return count, nil
}

// ResetStuck recovers jobs stranded before the deadline: running jobs are
// failed, and pending jobs whose dispatch stamp was set but that never
// started get the stamp cleared so the dispatcher can claim them again.
func (s *JobStore) ResetStuck(_ context.Context, stuckBefore time.Time, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, job := range s.jobs {
		switch {
		case job.Status == crawl.JobStatusRunning && job.StartedAt != nil && job.StartedAt.Before(stuckBefore):
			job.Status = crawl.JobStatusFailed
			job.ErrorMessage = fmt.Sprintf("stuck job reset: running since %s", job.StartedAt.Format(time.RFC3339))
			job.CompletedAt = &now
		case job.Status == crawl.JobStatusPending && job.StartedAt == nil &&
			job.DispatchedAt != nil && job.DispatchedAt.Before(stuckBefore):
			// Claimed by a dispatch pass that never got the job onto the
			// queue, usually a shutdown between claim and enqueue.
			job.DispatchedAt = nil
		default:
			continue
		}
		s.jobs[id] = job
		count++
	}
	return count, nil
}

func (s *JobStore) transition(jobID string, to crawl.JobStatus, apply func(*crawl.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if err := crawl.CheckTransition(job.Status, to); err != nil {
		return err
	}
	job.Status = to
	apply(&job)
	s.jobs[jobID] = job
	return nil
}

// Error messages are capped so upstream stack dumps don't bloat the table.
const maxErrorLen = 1000

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
