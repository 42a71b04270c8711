package commands

import (
	"time"

	"car-crawler/logger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var logsOpts struct {
	source string
	limit  int
}

func init() {
	logsCmd.Flags().StringVar(&logsOpts.source, "source", "", "Only show records of this source")
	logsCmd.Flags().IntVar(&logsOpts.limit, "limit", 30, "Number of records to show")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Shows recent crawler log records, including crawl metrics.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.RecentLogs(cmd.Context(), logsOpts.source, logsOpts.limit)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Time", "Source", "Status", "Message"})
		for _, r := range records {
			t.AppendRow(table.Row{r.CreatedAt.Local().Format(time.DateTime), r.SourceID, r.Status, r.Message})
		}
		t.Render()
		return nil
	},
}
