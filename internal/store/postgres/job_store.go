// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists crawl jobs in the crawl_jobs table.
//
// The table carries a partial unique index on (source_id, url) over active
// rows, which is what makes CreateJob idempotent under concurrent writers:
//
//	CREATE UNIQUE INDEX crawl_jobs_active_pair
//	    ON crawl_jobs (source_id, url)
//	    WHERE status IN ('pending', 'running');
type JobStore struct {
	pool dbPool
}

// NewJobStore creates a Postgres-backed JobStore.
func NewJobStore(ctx context.Context, cfg PoolConfig) (*JobStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, source_id, url, status, priority, retry_count, max_retries,
	error_message, metadata, created_at, scheduled_at, dispatched_at, started_at, completed_at`

// CreateJob inserts a job unless an active one already exists for the same
// (source_id, url) pair. The conflict target is the partial unique index on
// active rows, so terminal rows never block a re-crawl.
func (s *JobStore) CreateJob(ctx context.Context, job crawl.Job) (crawl.Job, bool, error) {
	if job.ID == "" {
		return crawl.Job{}, false, fmt.Errorf("job id is required")
	}
	if job.Status == "" {
		job.Status = crawl.JobStatusPending
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = crawl.DefaultMaxRetries
	}
	metadata, err := marshalMetadata(job.Metadata)
	if err != nil {
		return crawl.Job{}, false, err
	}

	query := `
INSERT INTO crawl_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (source_id, url) WHERE status IN ('pending','running') DO NOTHING
RETURNING ` + jobColumns
	row := s.pool.QueryRow(ctx, query,
		job.ID, job.SourceID, job.URL, job.Status, job.Priority,
		job.RetryCount, job.MaxRetries, job.ErrorMessage, metadata,
		job.CreatedAt, job.ScheduledAt, job.DispatchedAt, job.StartedAt, job.CompletedAt,
	)
	inserted, err := scanJob(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return crawl.Job{}, false, fmt.Errorf("insert job: %w", err)
	}

	// Conflict: return the existing active row.
	existing, err := s.activeJobFor(ctx, job.SourceID, job.URL)
	if err != nil {
		return crawl.Job{}, false, err
	}
	return existing, false, nil
}

func (s *JobStore) activeJobFor(ctx context.Context, sourceID, url string) (crawl.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM crawl_jobs
WHERE source_id = $1 AND url = $2 AND status IN ('pending','running')
LIMIT 1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, sourceID, url))
	if err != nil {
		return crawl.Job{}, fmt.Errorf("select active job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawl.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = $1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		return crawl.Job{}, fmt.Errorf("select job %s: %w", jobID, err)
	}
	return job, nil
}

// ClaimPending stamps and returns up to limit dispatchable jobs. The
// subselect with FOR UPDATE SKIP LOCKED keeps concurrent dispatchers from
// claiming the same rows, and the dispatched_at IS NULL guard keeps a row
// from being handed out twice across passes.
func (s *JobStore) ClaimPending(ctx context.Context, limit int, now time.Time) ([]crawl.Job, error) {
	query := `
UPDATE crawl_jobs
SET dispatched_at = $1
WHERE id IN (
	SELECT id FROM crawl_jobs
	WHERE status = 'pending' AND dispatched_at IS NULL AND scheduled_at <= $1
	ORDER BY priority DESC, created_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawl.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning transitions a job to running. The status guard in the WHERE
// clause enforces the state machine at the database level.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string, now time.Time) error {
	query := `
UPDATE crawl_jobs
SET status = 'running', started_at = $2
WHERE id = $1 AND status = 'pending'`
	return s.guardedUpdate(ctx, jobID, crawl.JobStatusRunning, query, jobID, now)
}

// MarkCompleted transitions a job to completed and merges result metadata.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, metadata map[string]string, now time.Time) error {
	merged, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	query := `
UPDATE crawl_jobs
SET status = 'completed', completed_at = $2, metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb
WHERE id = $1 AND status = 'running'`
	return s.guardedUpdate(ctx, jobID, crawl.JobStatusCompleted, query, jobID, now, merged)
}

// MarkFailed transitions a job to terminal failed.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string, now time.Time) error {
	query := `
UPDATE crawl_jobs
SET status = 'failed', error_message = left($2, 1000), completed_at = $3
WHERE id = $1 AND status = 'running'`
	return s.guardedUpdate(ctx, jobID, crawl.JobStatusFailed, query, jobID, errMsg, now)
}

// ScheduleRetry returns a running job to pending with an incremented retry
// counter, cleared dispatch stamp, and a future due time.
func (s *JobStore) ScheduleRetry(ctx context.Context, jobID string, errMsg string, runAt time.Time) error {
	query := `
UPDATE crawl_jobs
SET status = 'pending',
    retry_count = retry_count + 1,
    error_message = left($2, 1000),
    dispatched_at = NULL,
    started_at = NULL,
    scheduled_at = $3
WHERE id = $1 AND status = 'running'`
	return s.guardedUpdate(ctx, jobID, crawl.JobStatusPending, query, jobID, errMsg, runAt)
}

func (s *JobStore) guardedUpdate(ctx context.Context, jobID string, to crawl.JobStatus, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		current, err := s.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return &crawl.ErrIllegalTransition{From: current.Status, To: to}
	}
	return nil
}

// Stats summarizes the job table.
func (s *JobStore) Stats(ctx context.Context, stuckAfter time.Duration, now time.Time) (crawl.JobStats, error) {
	query := `
SELECT
	count(*) FILTER (WHERE status = 'pending') AS pending,
	count(*) FILTER (WHERE status = 'running') AS running,
	count(*) FILTER (WHERE status = 'completed') AS completed,
	count(*) FILTER (WHERE status = 'failed') AS failed,
	count(*) FILTER (WHERE status = 'running' AND started_at < $1) AS stuck,
	COALESCE(avg(EXTRACT(EPOCH FROM completed_at - started_at))
		FILTER (WHERE status = 'completed' AND started_at IS NOT NULL), 0) AS avg_completion
FROM crawl_jobs`
	var stats crawl.JobStats
	err := s.pool.QueryRow(ctx, query, now.Add(-stuckAfter)).Scan(
		&stats.Pending, &stats.Running, &stats.Completed, &stats.Failed,
		&stats.Stuck, &stats.AvgCompletionSeconds,
	)
	if err != nil {
		return crawl.JobStats{}, fmt.Errorf("job stats: %w", err)
	}
	if terminal := stats.Completed + stats.Failed; terminal > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(terminal)
	}
	return stats, nil
}

// DeleteTerminal removes (or, for dry-run, counts) old terminal jobs.
func (s *JobStore) DeleteTerminal(ctx context.Context, cutoff time.Time, includeFailed bool, dryRun bool) (int, error) {
	where := `completed_at < $1 AND status = 'completed'`
	if includeFailed {
		where = `completed_at < $1 AND status IN ('completed','failed')`
	}
	if dryRun {
		var n int
		query := `SELECT count(*) FROM crawl_jobs WHERE ` + where
		if err := s.pool.QueryRow(ctx, query, cutoff).Scan(&n); err != nil {
			return 0, fmt.Errorf("count terminal jobs: %w", err)
		}
		return n, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM crawl_jobs WHERE `+where, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetFailed returns failed jobs to pending with a fresh retry budget.
func (s *JobStore) ResetFailed(ctx context.Context, now time.Time) (int, error) {
	query := `
UPDATE crawl_jobs
SET status = 'pending',
    retry_count = 0,
    dispatched_at = NULL,
    started_at = NULL,
    completed_at = NULL,
    scheduled_at = $1
WHERE status = 'failed'`
	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("reset failed jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetStuck recovers jobs stranded before the deadline: running jobs are
// failed, and pending jobs whose dispatch stamp was set but that never
// started get the stamp cleared so ClaimPending sees them again.
func (s *JobStore) ResetStuck(ctx context.Context, stuckBefore time.Time, now time.Time) (int, error) {
	failQuery := `
UPDATE crawl_jobs
SET status = 'failed',
    error_message = 'stuck job reset: running since ' || to_char(started_at, 'YYYY-MM-DD"T"HH24:MI:SSZ'),
    completed_at = $2
WHERE status = 'running' AND started_at < $1`
	tag, err := s.pool.Exec(ctx, failQuery, stuckBefore, now)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	count := int(tag.RowsAffected())

	reclaimQuery := `
UPDATE crawl_jobs
SET dispatched_at = NULL
WHERE status = 'pending' AND started_at IS NULL AND dispatched_at < $1`
	tag, err = s.pool.Exec(ctx, reclaimQuery, stuckBefore)
	if err != nil {
		return 0, fmt.Errorf("reclaim undispatched jobs: %w", err)
	}
	return count + int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (crawl.Job, error) {
	var (
		job      crawl.Job
		errMsg   *string
		metadata []byte
	)
	err := row.Scan(
		&job.ID, &job.SourceID, &job.URL, &job.Status, &job.Priority,
		&job.RetryCount, &job.MaxRetries, &errMsg, &metadata,
		&job.CreatedAt, &job.ScheduledAt, &job.DispatchedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return crawl.Job{}, err
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return crawl.Job{}, fmt.Errorf("unmarshal job metadata: %w", err)
		}
	}
	return job, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}
