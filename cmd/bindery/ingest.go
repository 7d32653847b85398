package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pressbound/bindery/internal/ingest"
)

var (
	ingestTitle   string
	ingestAuthor  string
	ingestJobType string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file> [file...]",
	Short: "Ingest a book from PDF or text files and queue it",
	Long: `Ingest a book from one or more PDF or plain-text files.

Multi-part sources are ordered by numeric suffix (book-1.pdf,
book-2.pdf, ...). The files are copied into the home directory and a
processing job is queued; run "bindery serve" to process it.

Examples:
  bindery ingest biology.pdf
  bindery ingest book-1.pdf book-2.pdf --title "Cell Biology"
  bindery ingest notes.txt --job-type text_only`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		h, err := openHome()
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		store, queue, err := openQueue(h, mgr.Get(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := ingest.Ingest(cmd.Context(), h, queue, ingest.Request{
			SourcePaths: args,
			Title:       ingestTitle,
			Author:      ingestAuthor,
			JobType:     ingestJobType,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Book:  %s (%s)\n", res.Title, res.BookID)
		fmt.Printf("Job:   %s\n", res.JobID)
		fmt.Printf("Files: %d\n", res.FileCount)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Book title (default: derived from filename)")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "Book author")
	ingestCmd.Flags().StringVar(&ingestJobType, "job-type", "full_pipeline", "Job type: full_pipeline, text_only, or audio_only")

	rootCmd.AddCommand(ingestCmd)
}
