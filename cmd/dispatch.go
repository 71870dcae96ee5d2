package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newDispatchCmd creates the 'dispatch' subcommand. The default dispatches
// a single batch; --loop runs the dispatch loop plus the worker pool until
// interrupted.
func newDispatchCmd() *cobra.Command {
	var (
		batch int
		sleep time.Duration
		loop  bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Claims pending jobs and hands them to the worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			dispatch := a.Dispatch
			if batch > 0 || sleep > 0 {
				dispatch = a.DispatcherWith(batch, sleep)
			}

			if !loop {
				n, err := dispatch.DispatchBatch(cmd.Context())
				if err != nil {
					return err
				}
				a.Logger.Info("batch dispatched", zap.Int("jobs", n))
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			dispatch.Run(ctx)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "batch size override")
	cmd.Flags().DurationVar(&sleep, "sleep", 0, "interval between batches override")
	cmd.Flags().BoolVar(&loop, "loop", false, "dispatch continuously until interrupted")
	return cmd
}
