package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pressbound/bindery/internal/jobs"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue statistics and active jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, queue, err := openLocalQueue()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := queue.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Jobs: %d total", stats.Total)
		for _, status := range []jobs.Status{
			jobs.StatusPending, jobs.StatusRunning, jobs.StatusCompleted,
			jobs.StatusFailed, jobs.StatusCancelled,
		} {
			if n := stats.ByStatus[status]; n > 0 {
				fmt.Printf(", %d %s", n, status)
			}
		}
		fmt.Println()

		for _, status := range []jobs.Status{jobs.StatusRunning, jobs.StatusPending} {
			list, err := queue.List(cmd.Context(), jobs.ListFilter{Status: status})
			if err != nil {
				return err
			}
			for _, job := range list {
				fmt.Printf("  %s  %-8s %-13s book=%s", job.ID, job.Status, job.JobType, job.BookID)
				if job.CurrentStage != "" {
					fmt.Printf(" stage=%s attempt=%d", job.CurrentStage, job.AttemptCount)
				}
				fmt.Println()
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
