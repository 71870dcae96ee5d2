package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/maintenance"
)

// newCleanupCmd creates the 'cleanup' subcommand for pruning terminal jobs.
func newCleanupCmd() *cobra.Command {
	var (
		days          int
		includeFailed bool
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Deletes old completed (and optionally failed) jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Maintain.Cleanup(cmd.Context(), days, includeFailed, dryRun)
			if err != nil {
				return err
			}
			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			a.Logger.Info("cleanup finished", zap.String("action", verb), zap.Int("jobs", n))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", maintenance.DefaultDaysToKeep, "retention window in days")
	cmd.Flags().BoolVar(&includeFailed, "include-failed", false, "also delete failed jobs")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count candidates without deleting")
	return cmd
}

// newRetryFailedCmd creates the 'retry-failed' subcommand.
func newRetryFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Returns all failed jobs to pending with a fresh retry budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Maintain.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			a.Logger.Info("failed jobs requeued", zap.Int("jobs", n))
			return nil
		},
	}
}

// newResetStuckCmd creates the 'reset-stuck' subcommand for recovering jobs
// whose worker died mid-run.
func newResetStuckCmd() *cobra.Command {
	var after time.Duration

	cmd := &cobra.Command{
		Use:   "reset-stuck",
		Short: "Recovers jobs that exceeded the stuck threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Maintain.ResetStuck(cmd.Context(), after)
			if err != nil {
				return err
			}
			a.Logger.Info("stuck jobs failed", zap.Int("jobs", n))
			return nil
		},
	}
	cmd.Flags().DurationVar(&after, "after", maintenance.DefaultStuckAfter, "running-time threshold")
	return cmd
}

// newStatsCmd creates the 'stats' subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints the job table summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := a.Maintain.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending:    %d\n", stats.Pending)
			fmt.Fprintf(out, "running:    %d\n", stats.Running)
			fmt.Fprintf(out, "completed:  %d\n", stats.Completed)
			fmt.Fprintf(out, "failed:     %d\n", stats.Failed)
			fmt.Fprintf(out, "stuck:      %d\n", stats.Stuck)
			fmt.Fprintf(out, "success:    %.1f%%\n", stats.SuccessRate*100)
			fmt.Fprintf(out, "avg run:    %.1fs\n", stats.AvgCompletionSeconds)
			return nil
		},
	}
}
