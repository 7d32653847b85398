package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pressbound/bindery/internal/jobs"
)

var (
	listStatus  string
	listBookID  string
	listJobType string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage the job queue",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, queue, err := openLocalQueue()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := queue.List(cmd.Context(), jobs.ListFilter{
			Status:  jobs.Status(listStatus),
			BookID:  listBookID,
			JobType: listJobType,
		})
		if err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Println("no jobs")
			return nil
		}
		for _, job := range list {
			fmt.Printf("%s  %-10s %-13s %-8s book=%s", job.ID, job.Status, job.JobType, job.Priority, job.BookID)
			if job.CurrentStage != "" {
				fmt.Printf(" stage=%s attempt=%d", job.CurrentStage, job.AttemptCount)
			}
			if job.LastError != "" {
				fmt.Printf(" error=%q", job.LastError)
			}
			fmt.Println()
		}
		return nil
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one job with its stage history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, queue, err := openLocalQueue()
		if err != nil {
			return err
		}
		defer store.Close()

		job, err := queue.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job:      %s\n", job.ID)
		fmt.Printf("Book:     %s\n", job.BookID)
		fmt.Printf("Type:     %s\n", job.JobType)
		fmt.Printf("Status:   %s\n", job.Status)
		fmt.Printf("Priority: %s\n", job.Priority)
		if job.CurrentStage != "" {
			fmt.Printf("Stage:    %s (attempt %d)\n", job.CurrentStage, job.AttemptCount)
		}
		if job.LastError != "" {
			fmt.Printf("Error:    %s\n", job.LastError)
		}

		results, err := store.StageResults(cmd.Context(), job.ID)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			fmt.Println("Stages:")
			for _, r := range results {
				fmt.Printf("  %-16s %-10s attempt=%d", r.Stage, r.Status, r.Attempt)
				if r.Method != "" {
					fmt.Printf(" method=%s", r.Method)
				}
				if r.ErrorDetail != "" {
					fmt.Printf(" error=%q", r.ErrorDetail)
				}
				fmt.Println()
			}
		}
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, queue, err := openLocalQueue()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := queue.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("cancel requested for %s\n", args[0])
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
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
		fmt.Printf("Total: %d\n", stats.Total)
		for _, status := range []jobs.Status{
			jobs.StatusPending, jobs.StatusRunning, jobs.StatusCompleted,
			jobs.StatusFailed, jobs.StatusCancelled,
		} {
			if n := stats.ByStatus[status]; n > 0 {
				fmt.Printf("  %-10s %d\n", status, n)
			}
		}
		return nil
	},
}

// openLocalQueue opens the home queue for one-shot CLI commands.
func openLocalQueue() (*jobs.SQLiteStore, *jobs.Queue, error) {
	h, err := openHome()
	if err != nil {
		return nil, nil, err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, nil, err
	}
	return openQueue(h, mgr.Get(), newLogger())
}

func init() {
	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	jobsListCmd.Flags().StringVar(&listBookID, "book", "", "Filter by book ID")
	jobsListCmd.Flags().StringVar(&listJobType, "job-type", "", "Filter by job type")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsCancelCmd, jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}
