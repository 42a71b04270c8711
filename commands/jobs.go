package commands

import (
	"fmt"
	"time"

	"car-crawler/db"
	"car-crawler/logger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var jobsLimit int

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Number of jobs to show")
	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Shows the most recent crawl jobs.",
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

		jobs, err := store.ListJobs(cmd.Context(), jobsLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Source", "Status", "Attempts", "Stalls", "Run at", "Last error"})
		for _, j := range jobs {
			t.AppendRow(table.Row{
				j.ID, j.SourceID, j.Status,
				j.Attempts, j.StallCount,
				j.RunAt.Local().Format(time.DateTime),
				j.LastError.String,
			})
		}
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d active", activeJobs(jobs))})
		t.Render()
		return nil
	},
}

// activeJobs counts the jobs that have not reached a final status
func activeJobs(jobs []db.Job) int {
	n := 0
	for _, j := range jobs {
		if !j.Terminal() {
			n++
		}
	}
	return n
}
