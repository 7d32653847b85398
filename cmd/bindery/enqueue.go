package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pressbound/bindery/internal/jobs"
)

var (
	enqueuePriority    string
	enqueueMaxAttempts int
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <book-id> <job-type>",
	Short: "Queue a processing job for an already-ingested book",
	Long: `Queue a job for a book that has already been ingested.

Job types:
  full_pipeline  extraction through audio generation
  text_only      extraction through vocabulary
  audio_only     audio generation from an existing vocabulary artifact

Examples:
  bindery enqueue 4f1c... full_pipeline
  bindery enqueue 4f1c... audio_only --priority high`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, queue, err := openLocalQueue()
		if err != nil {
			return err
		}
		defer store.Close()

		priority, err := jobs.ParsePriority(enqueuePriority)
		if err != nil {
			return err
		}

		job, err := queue.Enqueue(cmd.Context(), args[0], args[1], priority, enqueueMaxAttempts)
		if err != nil {
			return err
		}
		fmt.Printf("queued %s (%s, priority %s)\n", job.ID, job.JobType, job.Priority)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "normal", "Job priority: low, normal, high, or urgent")
	enqueueCmd.Flags().IntVar(&enqueueMaxAttempts, "max-attempts", 0, "Per-stage attempt budget (0 = configured default)")

	rootCmd.AddCommand(enqueueCmd)
}
