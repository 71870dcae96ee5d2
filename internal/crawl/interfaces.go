package crawl

import (
	"context"
	"time"
)

// JobStore persists crawl jobs and enforces the status state machine.
type JobStore interface {
	// CreateJob inserts a job unless an active (pending/running) job already
	// exists for the same (sourceID, url) pair. The bool reports whether a
	// row was created.
	CreateJob(ctx context.Context, job Job) (Job, bool, error)
	GetJob(ctx context.Context, jobID string) (Job, error)
	// ClaimPending atomically selects up to limit dispatchable jobs
	// (pending, not yet dispatched, due) ordered by priority then age, and
	// stamps each with dispatchedAt before returning it.
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]Job, error)
	MarkRunning(ctx context.Context, jobID string, now time.Time) error
	MarkCompleted(ctx context.Context, jobID string, metadata map[string]string, now time.Time) error
	MarkFailed(ctx context.Context, jobID string, errMsg string, now time.Time) error
	// ScheduleRetry increments the retry counter, clears the dispatch stamp
	// and returns the job to pending, due at runAt.
	ScheduleRetry(ctx context.Context, jobID string, errMsg string, runAt time.Time) error
	Stats(ctx context.Context, stuckAfter time.Duration, now time.Time) (JobStats, error)
	// DeleteTerminal removes terminal jobs completed before cutoff. Failed
	// jobs are preserved unless includeFailed is set. dryRun only counts.
	DeleteTerminal(ctx context.Context, cutoff time.Time, includeFailed bool, dryRun bool) (int, error)
	// ResetFailed returns eligible failed jobs to pending with a fresh retry
	// budget. Operator-invoked bulk recovery, not part of automatic retry.
	ResetFailed(ctx context.Context, now time.Time) (int, error)
	// ResetStuck recovers jobs stranded before the deadline: running jobs
	// become failed, and dispatch-stamped pending jobs that never started
	// have the stamp cleared so they can be claimed again.
	ResetStuck(ctx context.Context, stuckBefore time.Time, now time.Time) (int, error)
}

// ArticleStore persists extracted articles and serves fingerprint lookups.
type ArticleStore interface {
	// UpsertArticle creates or updates the article row keyed by URL.
	UpsertArticle(ctx context.Context, article Article) (Article, error)
	// FindByHash returns the earliest article recorded with the hash.
	FindByHash(ctx context.Context, hash string) (Article, bool, error)
}

// SourceStore provides read-only access to registered sources.
type SourceStore interface {
	GetSource(ctx context.Context, idOrDomain string) (Source, error)
	ListActive(ctx context.Context) ([]Source, error)
}

// Queue provides enqueue/dequeue semantics for claimed jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes article-created events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// BlobStore archives raw page bodies and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and article IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
