// Package cmd defines and implements the CLI commands for the newscrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verifysource/newscrawler/internal/app"
	"github.com/verifysource/newscrawler/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can replace
// it with a factory that returns a pre-wired container.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. Application services
// are built in PersistentPreRunE and torn down in PersistentPostRun, so
// every subcommand gets a fully wired container from its context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newscrawler",
		Short: "A news-article crawl orchestration and deduplication engine.",
		Long: `newscrawler discovers article URLs from sitemaps, feeds, and homepages,
schedules them as crawl jobs, and executes the fetch, extract, fingerprint,
and dedup pipeline against the configured stores.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only configuration)")

	cmd.AddCommand(
		newServeCmd(),
		newSourceCmd(),
		newScheduleCmd(),
		newProcessCmd(),
		newDispatchCmd(),
		newCleanupCmd(),
		newRetryFailedCmd(),
		newResetStuckCmd(),
		newStatsCmd(),
	)

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
