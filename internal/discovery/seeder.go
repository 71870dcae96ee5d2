package discovery

import (
	"context"
	"fmt"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// StoreSeeder seeds follow-on discovery jobs straight into the job store.
type StoreSeeder struct {
	jobs  crawl.JobStore
	ids   crawl.IDGenerator
	clock crawl.Clock
}

// NewStoreSeeder constructs a StoreSeeder.
func NewStoreSeeder(jobs crawl.JobStore, ids crawl.IDGenerator, clock crawl.Clock) *StoreSeeder {
	return &StoreSeeder{jobs: jobs, ids: ids, clock: clock}
}

// SeedJob creates a pending job for the URL. Idempotency is the job store's
// concern: an active job for the same (source, url) pair absorbs the seed.
func (s *StoreSeeder) SeedJob(ctx context.Context, sourceID, url string, priority int, metadata map[string]string) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	_, _, err = s.jobs.CreateJob(ctx, crawl.Job{
		ID:          id,
		SourceID:    sourceID,
		URL:         url,
		Status:      crawl.JobStatusPending,
		Priority:    priority,
		Metadata:    metadata,
		MaxRetries:  crawl.DefaultMaxRetries,
		CreatedAt:   now,
		ScheduledAt: now,
	})
	if err != nil {
		return fmt.Errorf("seed job for %s: %w", url, err)
	}
	return nil
}
