package main

import (
	"github.com/spf13/cobra"

	"github.com/pressbound/bindery/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "bindery",
	Short: "Book ingestion and AI enrichment pipeline",
	Long: `Bindery turns raw book files into structured study material.

Books are ingested from PDF or plain-text sources and processed through
a staged pipeline:
  - Text extraction from the original files
  - Segmentation into modules (chapters or units)
  - Per-module topic analysis
  - Vocabulary extraction with definitions and examples
  - Audio generation for vocabulary review

Jobs are queued durably and survive restarts; a failed job resumes at
the stage that failed.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bindery/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "bindery home directory (default: ~/.bindery)",
	)

	rootCmd.AddCommand(versionCmd)
}
