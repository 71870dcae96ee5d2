package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
	"github.com/verifysource/newscrawler/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBackoffFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 60*time.Second, BackoffFor(0))
	assert.Equal(t, 120*time.Second, BackoffFor(1))
	assert.Equal(t, 300*time.Second, BackoffFor(2))
	assert.Equal(t, 300*time.Second, BackoffFor(7))
	assert.Equal(t, 60*time.Second, BackoffFor(-1))
}

func seedRunningJob(t *testing.T, store *memory.JobStore, job crawl.Job) crawl.Job {
	t.Helper()
	ctx := context.Background()
	created, _, err := store.CreateJob(ctx, job)
	require.NoError(t, err)
	claimed, err := store.ClaimPending(ctx, 1, baseTime)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.MarkRunning(ctx, created.ID, baseTime))
	return created
}

func TestHandleFailure_SchedulesRetryWithBackoff(t *testing.T) {
	t.Parallel()
	store := memory.NewJobStore()
	sup := NewSupervisor(store, fixedClock{baseTime}, zap.NewNop())

	job := seedRunningJob(t, store, crawl.Job{
		ID: "j1", SourceID: "s1", URL: "https://example.com/news/a",
		MaxRetries: 3, CreatedAt: baseTime, ScheduledAt: baseTime,
	})

	require.NoError(t, sup.HandleFailure(context.Background(), job, crawl.NewFetchError(assert.AnError)))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, baseTime.Add(60*time.Second), got.ScheduledAt)
}

func TestHandleFailure_ParseErrorGoesTerminal(t *testing.T) {
	t.Parallel()
	store := memory.NewJobStore()
	sup := NewSupervisor(store, fixedClock{baseTime}, zap.NewNop())

	job := seedRunningJob(t, store, crawl.Job{
		ID: "j1", SourceID: "s1", URL: "https://example.com/news/a",
		MaxRetries: 3, CreatedAt: baseTime, ScheduledAt: baseTime,
	})

	require.NoError(t, sup.HandleFailure(context.Background(), job, crawl.NewParseError(assert.AnError)))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusFailed, got.Status)
	assert.Zero(t, got.RetryCount)
}

func TestHandleFailure_ExhaustedBudgetGoesTerminal(t *testing.T) {
	t.Parallel()
	store := memory.NewJobStore()
	sup := NewSupervisor(store, fixedClock{baseTime}, zap.NewNop())

	job := seedRunningJob(t, store, crawl.Job{
		ID: "j1", SourceID: "s1", URL: "https://example.com/news/a",
		RetryCount: 3, MaxRetries: 3, CreatedAt: baseTime, ScheduledAt: baseTime,
	})

	require.NoError(t, sup.HandleFailure(context.Background(), job, crawl.NewFetchError(assert.AnError)))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "retries exhausted")
}

func TestHandleFailure_OverAgeJobIsAbandoned(t *testing.T) {
	t.Parallel()
	store := memory.NewJobStore()
	clock := fixedClock{baseTime.Add(25 * time.Hour)}
	sup := NewSupervisor(store, clock, zap.NewNop())

	ctx := context.Background()
	created, _, err := store.CreateJob(ctx, crawl.Job{
		ID: "j1", SourceID: "s1", URL: "https://example.com/news/a",
		MaxRetries: 3, CreatedAt: baseTime, ScheduledAt: baseTime,
	})
	require.NoError(t, err)
	_, err = store.ClaimPending(ctx, 1, clock.Now())
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, created.ID, clock.Now()))

	require.NoError(t, sup.HandleFailure(ctx, created, crawl.NewFetchError(assert.AnError)))

	got, err := store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, crawl.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "retry window")
}

func TestHandleFailure_BackoffGrowsWithAttempts(t *testing.T) {
	t.Parallel()
	store := memory.NewJobStore()
	sup := NewSupervisor(store, fixedClock{baseTime}, zap.NewNop())

	job := seedRunningJob(t, store, crawl.Job{
		ID: "j1", SourceID: "s1", URL: "https://example.com/news/a",
		RetryCount: 2, MaxRetries: 5, CreatedAt: baseTime, ScheduledAt: baseTime,
	})

	require.NoError(t, sup.HandleFailure(context.Background(), job, crawl.NewFetchError(assert.AnError)))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(300*time.Second), got.ScheduledAt)
}
