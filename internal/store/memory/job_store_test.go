package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifysource/newscrawler/internal/crawl"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newJob(id, url string) crawl.Job {
	return crawl.Job{
		ID:          id,
		SourceID:    "src-1",
		URL:         url,
		Status:      crawl.JobStatusPending,
		Priority:    crawl.DefaultPriority,
		MaxRetries:  crawl.DefaultMaxRetries,
		CreatedAt:   testTime,
		ScheduledAt: testTime,
	}
}

func TestCreateJob_IdempotentForActivePair(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	first, created, err := store.CreateJob(ctx, newJob("j1", "https://example.com/news/a"))
	require.NoError(t, err)
	require.True(t, created)

	dup, created, err := store.CreateJob(ctx, newJob("j2", "https://example.com/news/a"))
	require.NoError(t, err)
	require.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	// Same URL, different source: not a duplicate.
	other := newJob("j3", "https://example.com/news/a")
	other.SourceID = "src-2"
	_, created, err = store.CreateJob(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreateJob_TerminalJobDoesNotBlockReinsert(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	_, _, err := store.CreateJob(ctx, newJob("j1", "https://example.com/news/a"))
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "j1", testTime))
	require.NoError(t, store.MarkCompleted(ctx, "j1", nil, testTime))

	_, created, err := store.CreateJob(ctx, newJob("j2", "https://example.com/news/a"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestClaimPending_OrderAndStamp(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	low := newJob("low", "https://example.com/news/low")
	old := newJob("old", "https://example.com/news/old")
	old.CreatedAt = testTime.Add(-time.Hour)
	high := newJob("high", "https://example.com/sitemap.xml")
	high.Priority = crawl.SitemapPriority
	for _, j := range []crawl.Job{low, old, high} {
		_, _, err := store.CreateJob(ctx, j)
		require.NoError(t, err)
	}

	claimed, err := store.ClaimPending(ctx, 2, testTime)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "high", claimed[0].ID)
	assert.Equal(t, "old", claimed[1].ID)
	for _, j := range claimed {
		require.NotNil(t, j.DispatchedAt)
		assert.Equal(t, testTime, *j.DispatchedAt)
	}

	// Already-stamped jobs are invisible to the next pass.
	again, err := store.ClaimPending(ctx, 10, testTime)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "low", again[0].ID)
}

func TestClaimPending_RespectsScheduledAt(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	future := newJob("future", "https://example.com/news/later")
	future.ScheduledAt = testTime.Add(time.Minute)
	_, _, err := store.CreateJob(ctx, future)
	require.NoError(t, err)

	claimed, err := store.ClaimPending(ctx, 10, testTime)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = store.ClaimPending(ctx, 10, testTime.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestClaimPending_ConcurrentPassesNeverDoubleClaim(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, _, err := store.CreateJob(ctx, newJob(fmt.Sprintf("j%d", i), fmt.Sprintf("https://example.com/news/%d", i)))
		require.NoError(t, err)
	}

	results := make(chan []crawl.Job, 10)
	for i := 0; i < 10; i++ {
		go func() {
			claimed, err := store.ClaimPending(ctx, 10, testTime)
			require.NoError(t, err)
			results <- claimed
		}()
	}

	seen := make(map[string]bool)
	total := 0
	for i := 0; i < 10; i++ {
		for _, j := range <-results {
			require.False(t, seen[j.ID], "job %s claimed twice", j.ID)
			seen[j.ID] = true
			total++
		}
	}
	assert.Equal(t, 50, total)
}

func TestTransitions_IllegalMovesRejected(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	_, _, err := store.CreateJob(ctx, newJob("j1", "https://example.com/news/a"))
	require.NoError(t, err)

	// pending -> completed is not a legal move.
	var illegal *crawl.ErrIllegalTransition
	err = store.MarkCompleted(ctx, "j1", nil, testTime)
	require.ErrorAs(t, err, &illegal)

	require.NoError(t, store.MarkRunning(ctx, "j1", testTime))
	require.NoError(t, store.MarkCompleted(ctx, "j1", nil, testTime))

	// Terminal jobs stay terminal.
	err = store.MarkRunning(ctx, "j1", testTime)
	require.ErrorAs(t, err, &illegal)
}

func TestScheduleRetry_ResetsDispatchState(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	_, _, err := store.CreateJob(ctx, newJob("j1", "https://example.com/news/a"))
	require.NoError(t, err)
	claimed, err := store.ClaimPending(ctx, 1, testTime)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.MarkRunning(ctx, "j1", testTime))

	runAt := testTime.Add(time.Minute)
	require.NoError(t, store.ScheduleRetry(ctx, "j1", "fetch: connection refused", runAt))

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "fetch: connection refused", job.ErrorMessage)
	assert.Nil(t, job.DispatchedAt)
	assert.Nil(t, job.StartedAt)
	assert.Equal(t, runAt, job.ScheduledAt)

	// Not due before runAt, claimable after.
	claimed, err = store.ClaimPending(ctx, 10, testTime)
	require.NoError(t, err)
	assert.Empty(t, claimed)
	claimed, err = store.ClaimPending(ctx, 10, runAt.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestStats(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	_, _, err := store.CreateJob(ctx, newJob("pending", "https://example.com/news/p"))
	require.NoError(t, err)

	_, _, err = store.CreateJob(ctx, newJob("done", "https://example.com/news/d"))
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "done", testTime))
	require.NoError(t, store.MarkCompleted(ctx, "done", nil, testTime.Add(10*time.Second)))

	_, _, err = store.CreateJob(ctx, newJob("dead", "https://example.com/news/f"))
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "dead", testTime))
	require.NoError(t, store.MarkFailed(ctx, "dead", "boom", testTime))

	_, _, err = store.CreateJob(ctx, newJob("stuck", "https://example.com/news/s"))
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "stuck", testTime.Add(-2*time.Hour)))

	stats, err := store.Stats(ctx, time.Hour, testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Stuck)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 10.0, stats.AvgCompletionSeconds, 1e-9)
}

func TestDeleteTerminal(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()
	oldTime := testTime.Add(-48 * time.Hour)

	seed := func(id string, fail bool, at time.Time) {
		_, _, err := store.CreateJob(ctx, newJob(id, "https://example.com/news/"+id))
		require.NoError(t, err)
		require.NoError(t, store.MarkRunning(ctx, id, at))
		if fail {
			require.NoError(t, store.MarkFailed(ctx, id, "boom", at))
		} else {
			require.NoError(t, store.MarkCompleted(ctx, id, nil, at))
		}
	}
	seed("old-done", false, oldTime)
	seed("old-failed", true, oldTime)
	seed("new-done", false, testTime)

	cutoff := testTime.Add(-24 * time.Hour)

	n, err := store.DeleteTerminal(ctx, cutoff, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.GetJob(ctx, "old-done")
	require.NoError(t, err, "dry run must not delete")

	n, err = store.DeleteTerminal(ctx, cutoff, true, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = store.GetJob(ctx, "old-done")
	require.Error(t, err)
	_, err = store.GetJob(ctx, "new-done")
	require.NoError(t, err)
}

func TestResetFailedAndResetStuck(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()

	_, _, err := store.CreateJob(ctx, newJob("dead", "https://example.com/news/dead"))
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "dead", testTime))
	require.NoError(t, store.MarkFailed(ctx, "dead", "boom", testTime))

	n, err := store.ResetFailed(ctx, testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	job, err := store.GetJob(ctx, "dead")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusPending, job.Status)
	assert.Zero(t, job.RetryCount)

	_, _, err = store.CreateJob(ctx, newJob("stuck", "https://example.com/news/stuck"))
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, "stuck", testTime.Add(-2*time.Hour)))

	n, err = store.ResetStuck(ctx, testTime.Add(-time.Hour), testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	job, err = store.GetJob(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "stuck job reset")
}

func TestResetStuck_ReclaimsClaimedButNeverStarted(t *testing.T) {
	t.Parallel()
	store := NewJobStore()
	ctx := context.Background()
	claimTime := testTime.Add(-2 * time.Hour)

	_, _, err := store.CreateJob(ctx, newJob("orphan", "https://example.com/news/orphan"))
	require.NoError(t, err)

	// A dispatch pass stamps the job but dies before handing it to a worker.
	claimed, err := store.ClaimPending(ctx, 1, claimTime)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// The stamp hides it from every later pass.
	claimed, err = store.ClaimPending(ctx, 10, testTime)
	require.NoError(t, err)
	require.Empty(t, claimed)

	n, err := store.ResetStuck(ctx, testTime.Add(-time.Hour), testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := store.GetJob(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusPending, job.Status)
	assert.Nil(t, job.DispatchedAt)

	claimed, err = store.ClaimPending(ctx, 10, testTime)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}
