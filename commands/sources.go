package commands

import (
	"car-crawler/logger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Lists the configured sources and their schedules.",
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
		registry := newRegistry(cfg, log.WithField("command", "sources"))

		supported := make(map[string]bool)
		for _, id := range registry.IDs() {
			supported[id] = true
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Base URL", "Schedule", "Active", "Engine", "Max pages", "Strategy"})
		for _, src := range cfg.Sources {
			t.AppendRow(table.Row{src.ID, src.BaseURL, src.CrawlSchedule, src.Active, src.Engine, src.MaxPages, supported[src.ID]})
		}
		t.Render()
		return nil
	},
}
