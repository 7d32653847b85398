package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/config"
	"github.com/pressbound/bindery/internal/ingest"
	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/pipeline"
	"github.com/pressbound/bindery/internal/providers"
	"github.com/pressbound/bindery/internal/server"
	"github.com/pressbound/bindery/internal/server/endpoints"
	"github.com/pressbound/bindery/internal/stages"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bindery server and worker pool",
	Long: `Start the bindery HTTP server, the pipeline workers, and the
inbox watcher.

The server provides:
  - /health and /status
  - /api/jobs     - queue management
  - /api/books    - ingest and artifact access
  - /api/events   - progress stream (server-sent events)

Examples:
  bindery serve                  # Start on default port 8841
  bindery serve --port 3000      # Start on custom port
  bindery serve --host 0.0.0.0   # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		h, err := openHome()
		if err != nil {
			return err
		}

		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		store, queue, err := openQueue(h, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		artifact, err := artifacts.OpenBadgerStore(h.ArtifactsPath(), logger)
		if err != nil {
			return err
		}
		defer artifact.Close()

		registry := providers.NewRegistry(logger)
		buildProviderRegistry(registry, cfg)
		mgr.OnChange(func(c *config.Config) {
			buildProviderRegistry(registry, c)
			logger.Info("provider registry reloaded from config")
		})
		mgr.WatchConfig()

		var textGen providers.TextGenerator
		if registry.HasText() {
			textGen = registryText{registry}
		}
		var speech providers.SpeechSynthesizer
		if registry.HasSpeech() {
			speech = registrySpeech{registry}
		}

		speechCfg, _ := cfg.GetSpeechProvider(cfg.Defaults.SpeechProvider)

		stageRegistry, err := pipeline.NewRegistry([]stages.Stage{
			stages.NewExtraction(h, artifact, logger),
			stages.NewSegmentation(h, artifact, stages.SegmentationConfig{
				Generator:     textGen,
				FixedPageSize: cfg.Pipeline.FixedPageSize,
			}, logger),
			stages.NewTopicAnalysis(artifact, textGen, "", logger),
			stages.NewVocabulary(artifact, textGen, "", logger),
			stages.NewAudioGeneration(artifact, speech, speechCfg.Voice, speechCfg.Format, logger),
		}, cfg.JobTypes)
		if err != nil {
			return err
		}

		broadcaster := pipeline.NewBroadcaster(logger)
		orch := pipeline.NewOrchestrator(store, artifact, stageRegistry, broadcaster, pipeline.RetryConfig{
			MaxAttempts:         uint(cfg.Pipeline.MaxAttempts),
			BackoffBase:         cfg.Pipeline.BackoffBase,
			RetryProviderErrors: cfg.Pipeline.RetryProviderErrors,
		}, logger)

		pool := pipeline.NewPool(queue, orch, cfg.Defaults.MaxWorkers, logger)
		pool.Start(ctx)

		if cfg.Ingest.WatchInbox {
			watcher := ingest.NewWatcher(h, queue, logger)
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Error("inbox watcher stopped", "error", err)
				}
			}()
		}

		if days := cfg.Pipeline.RetentionDays; days > 0 {
			go purgeLoop(ctx, queue, time.Duration(days)*24*time.Hour, logger)
		}

		srv := server.New(server.Config{
			Host:   serveHost,
			Port:   servePort,
			Logger: logger,
			Deps: endpoints.Deps{
				Home:      h,
				Queue:     queue,
				Store:     store,
				Artifacts: artifact,
				Registry:  registry,
				Progress:  broadcaster,
				Logger:    logger,
			},
		})

		err = srv.Start(ctx)
		pool.Wait()
		return err
	},
}

// purgeLoop removes terminal jobs past the retention window once an
// hour.
func purgeLoop(ctx context.Context, queue *jobs.Queue, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := queue.PurgeTerminal(ctx, retention); err != nil {
				logger.Warn("job purge failed", "error", err)
			}
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().IntVar(&servePort, "port", 8841, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
