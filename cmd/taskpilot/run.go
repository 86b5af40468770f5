package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskpilot/internal/app"
)

func (c *cli) runCmd() *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the daemon (reminder scheduler and bot)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.NewApp(c.cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case <-a.Done():
			}
			reason := stopReason(ctx)
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			if err := a.Stop(stopCtx, reason); err != nil {
				return err
			}
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "graceful shutdown bound")
	return cmd
}

// stopReason names why the daemon is stopping once the signal context or the
// app is done. A signal cancels both, so the signal context decides.
func stopReason(ctx context.Context) app.StopReason {
	if ctx.Err() != nil {
		return app.StopSignal
	}
	return app.StopFatalError
}
