package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifysource/newscrawler/internal/crawl"
)

var jobCols = []string{
	"id", "source_id", "url", "status", "priority", "retry_count", "max_retries",
	"error_message", "metadata", "created_at", "scheduled_at", "dispatched_at", "started_at", "completed_at",
}

func jobRow(id string, status crawl.JobStatus, priority int, at time.Time) []any {
	return []any{
		id, "src-1", "https://example.com/news/" + id, status, priority, 0, 3,
		nil, []byte(`{}`), at, at, nil, nil, nil,
	}
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	job := crawl.Job{
		ID:          "job-1",
		SourceID:    "src-1",
		URL:         "https://example.com/news/job-1",
		Status:      crawl.JobStatusPending,
		Priority:    crawl.DefaultPriority,
		MaxRetries:  crawl.DefaultMaxRetries,
		CreatedAt:   now,
		ScheduledAt: now,
	}

	mock.ExpectQuery("INSERT INTO crawl_jobs").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(jobRow("job-1", crawl.JobStatusPending, 5, now)...))

	created, inserted, err := store.CreateJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "job-1", created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobReturnsExistingOnConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	job := crawl.Job{
		ID:          "job-2",
		SourceID:    "src-1",
		URL:         "https://example.com/news/job-1",
		CreatedAt:   now,
		ScheduledAt: now,
	}

	// ON CONFLICT ... DO NOTHING yields no rows; the existing active row wins.
	mock.ExpectQuery("INSERT INTO crawl_jobs").
		WillReturnRows(pgxmock.NewRows(jobCols))
	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs").
		WithArgs("src-1", "https://example.com/news/job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(jobRow("job-1", crawl.JobStatusRunning, 5, now)...))

	existing, inserted, err := store.CreateJob(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "job-1", existing.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPendingStampsAndReturnsJobs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("UPDATE crawl_jobs").
		WithArgs(now, 2).
		WillReturnRows(pgxmock.NewRows(jobCols).
			AddRow(jobRow("high", crawl.JobStatusPending, 10, now)...).
			AddRow(jobRow("low", crawl.JobStatusPending, 5, now)...))

	jobs, err := store.ClaimPending(context.Background(), 2, now)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "high", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRunningRejectsIllegalTransition(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	// Zero rows affected means the status guard did not match; the store
	// re-reads the row to report the actual state.
	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("job-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(jobRow("job-1", crawl.JobStatusCompleted, 5, now)...))

	err = store.MarkRunning(context.Background(), "job-1", now)
	var illegal *crawl.ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, crawl.JobStatusCompleted, illegal.From)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRetryUpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	runAt := time.Unix(1700000300, 0).UTC()
	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("job-1", "fetch: status 503", runAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.ScheduleRetry(context.Background(), "job-1", "fetch: status 503", runAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsComputesSuccessRate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT").
		WithArgs(now.Add(-time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{
			"pending", "running", "completed", "failed", "stuck", "avg_completion",
		}).AddRow(4, 2, 30, 10, 1, 12.5))

	stats, err := store.Stats(context.Background(), time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Completed)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 12.5, stats.AvgCompletionSeconds, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStuckRecoversRunningAndClaimedJobs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	deadline := now.Add(-time.Hour)

	// Long-running jobs are failed, then claimed-but-never-started jobs get
	// their dispatch stamp cleared so they become claimable again.
	mock.ExpectExec("SET status = 'failed'").
		WithArgs(deadline, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("SET dispatched_at = NULL").
		WithArgs(deadline).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := store.ResetStuck(context.Background(), deadline, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTerminalDryRunCountsOnly(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	cutoff := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT count").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.DeleteTerminal(context.Background(), cutoff, false, true)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTerminalDeletes(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	cutoff := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("DELETE FROM crawl_jobs").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	n, err := store.DeleteTerminal(context.Background(), cutoff, true, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
