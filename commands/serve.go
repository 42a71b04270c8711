package commands

import (
	"car-crawler/scheduler"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the scheduler: enqueues every active source on its cron schedule and processes crawl jobs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		s := scheduler.NewScheduler(a.cfg, a.store, a.pipeline, a.notifier(), a.entry)
		if err := s.Start(ctx); err != nil {
			return err
		}
		a.entry.WithField("sources", len(a.cfg.ActiveSources())).Info("crawler service started")

		<-ctx.Done()
		a.entry.Info("shutting down")
		s.Stop()
		return nil
	},
}
