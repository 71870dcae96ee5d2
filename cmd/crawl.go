package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/app"
	"github.com/verifysource/newscrawler/internal/crawl"
)

// newSourceCmd creates the 'source' subcommand. It seeds a discovery job
// for one registered source (or all active sources with --all); the
// dispatcher and workers pick it up from there unless --immediate is set.
func newSourceCmd() *cobra.Command {
	var (
		seedURL   string
		all       bool
		immediate bool
	)

	cmd := &cobra.Command{
		Use:   "source [source-id-or-domain]",
		Short: "Seeds a discovery job for a registered source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			var sources []crawl.Source
			switch {
			case all:
				sources, err = a.Sources.ListActive(cmd.Context())
				if err != nil {
					return fmt.Errorf("list active sources: %w", err)
				}
			case len(args) == 1:
				source, err := a.Sources.GetSource(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("resolve source: %w", err)
				}
				sources = []crawl.Source{source}
			default:
				return fmt.Errorf("a source id/domain or --all is required")
			}

			for _, source := range sources {
				seed := seedURL
				if seed == "" || all {
					seed = source.URL
				}
				job, err := seedDiscoveryJob(cmd.Context(), a, source, seed)
				if err != nil {
					return err
				}
				a.Logger.Info("discovery job seeded",
					zap.String("job_id", job.ID),
					zap.String("source_id", source.ID),
					zap.String("seed", seed),
				)
				if immediate {
					result := a.Workers[0].Execute(cmd.Context(), job)
					if result.Err != nil {
						return fmt.Errorf("execute discovery for %s: %w", source.ID, result.Err)
					}
					a.Logger.Info("discovery executed",
						zap.String("source_id", source.ID),
						zap.Int("urls_discovered", result.URLsDiscovered),
					)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&seedURL, "url", "", "seed URL override (defaults to the source URL)")
	cmd.Flags().BoolVar(&all, "all", false, "seed every active source")
	cmd.Flags().BoolVar(&immediate, "immediate", false, "run discovery inline instead of waiting for dispatch")
	return cmd
}

func seedDiscoveryJob(ctx context.Context, a *app.App, source crawl.Source, seed string) (crawl.Job, error) {
	id, err := a.IDs.NewID()
	if err != nil {
		return crawl.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := a.Clock.Now()
	job, _, err := a.Jobs.CreateJob(ctx, crawl.Job{
		ID:          id,
		SourceID:    source.ID,
		URL:         seed,
		Status:      crawl.JobStatusPending,
		Priority:    crawl.SitemapPriority,
		MaxRetries:  crawl.DefaultMaxRetries,
		Metadata:    map[string]string{crawl.MetaCrawlType: crawl.CrawlTypeDiscover},
		CreatedAt:   now,
		ScheduledAt: now,
	})
	if err != nil {
		return crawl.Job{}, fmt.Errorf("seed job for %s: %w", seed, err)
	}
	return job, nil
}

// newScheduleCmd creates the 'schedule' subcommand: one discovery job per
// active source, optionally filtered by crawl frequency. Sources with an
// active job for the same seed are absorbed by the store's idempotency
// guard.
func newScheduleCmd() *cobra.Command {
	var (
		frequency string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Seeds discovery jobs for all active sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := a.Sources.ListActive(cmd.Context())
			if err != nil {
				return fmt.Errorf("list active sources: %w", err)
			}
			seeded := 0
			for _, source := range sources {
				if frequency != "" && source.Frequency != frequency {
					continue
				}
				if limit > 0 && seeded >= limit {
					break
				}
				if err := a.Seeder.SeedJob(cmd.Context(), source.ID, source.URL, crawl.DefaultPriority, map[string]string{
					crawl.MetaCrawlType: crawl.CrawlTypeDiscover,
				}); err != nil {
					a.Logger.Warn("seeding failed",
						zap.String("source_id", source.ID),
						zap.Error(err),
					)
					continue
				}
				seeded++
			}
			a.Logger.Info("scheduling finished",
				zap.Int("sources", len(sources)),
				zap.Int("seeded", seeded),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&frequency, "frequency", "", "only seed sources with this crawl frequency")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sources to seed (0 = all)")
	return cmd
}

// newProcessCmd creates the 'process' subcommand: claim up to N due jobs
// and execute them inline, without the dispatch loop.
func newProcessCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Claims due pending jobs and executes them inline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := a.Jobs.ClaimPending(cmd.Context(), limit, a.Clock.Now())
			if err != nil {
				return fmt.Errorf("claim pending: %w", err)
			}
			var failed int
			for _, job := range jobs {
				result := a.Workers[0].Execute(cmd.Context(), job)
				if result.Err != nil {
					failed++
					a.Logger.Warn("job failed",
						zap.String("job_id", job.ID),
						zap.Error(result.Err),
					)
				}
			}
			a.Logger.Info("processing finished",
				zap.Int("jobs", len(jobs)),
				zap.Int("failed", failed),
			)
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of jobs to process")
	return cmd
}
