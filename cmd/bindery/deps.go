package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/pressbound/bindery/internal/config"
	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/providers"
)

// newLogger builds the process-wide structured logger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// openHome resolves and prepares the home directory.
func openHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// loadConfig builds the config manager, preferring --config, then the
// home config file, then defaults.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}

// openQueue opens the durable job store and its queue service.
func openQueue(h *home.Dir, cfg *config.Config, logger *slog.Logger) (*jobs.SQLiteStore, *jobs.Queue, error) {
	store, err := jobs.NewSQLiteStore(h.QueueDBPath())
	if err != nil {
		return nil, nil, err
	}
	priority, err := jobs.ParsePriority(cfg.Defaults.Priority)
	if err != nil {
		priority = jobs.PriorityNormal
	}
	queue := jobs.NewQueue(store, logger, priority, cfg.Pipeline.MaxAttempts)
	return store, queue, nil
}

// buildProviderRegistry registers every enabled provider from config.
// Called again on config reload; re-registering by name replaces the
// client.
func buildProviderRegistry(registry *providers.Registry, cfg *config.Config) {
	for name, p := range cfg.EnabledTextProviders() {
		switch p.Type {
		case "openai":
			registry.RegisterText(name, providers.NewOpenAIClient(providers.OpenAIConfig{
				APIKey:    config.ResolveEnvVars(p.APIKey),
				Model:     p.Model,
				RateLimit: p.RateLimit,
				BaseURL:   p.BaseURL,
			}))
		case "mock":
			registry.RegisterText(name, providers.NewMockTextGenerator())
		}
	}
	for name, p := range cfg.EnabledSpeechProviders() {
		switch p.Type {
		case "openai":
			registry.RegisterSpeech(name, providers.NewOpenAISpeechClient(providers.OpenAISpeechConfig{
				APIKey:    config.ResolveEnvVars(p.APIKey),
				Model:     p.Model,
				Voice:     p.Voice,
				RateLimit: p.RateLimit,
				BaseURL:   p.BaseURL,
			}))
		case "mock":
			registry.RegisterSpeech(name, providers.NewMockSpeechSynthesizer())
		}
	}
	registry.SetDefaults(cfg.Defaults.TextProvider, cfg.Defaults.SpeechProvider)
}

// registryText resolves the default text generator at call time so a
// config reload takes effect without restarting the pipeline.
type registryText struct {
	registry *providers.Registry
}

func (g registryText) Name() string { return "registry" }

func (g registryText) Generate(ctx context.Context, req *providers.TextRequest) (*providers.TextResult, error) {
	client, err := g.registry.Text()
	if err != nil {
		return nil, err
	}
	return client.Generate(ctx, req)
}

// registrySpeech is the speech counterpart of registryText.
type registrySpeech struct {
	registry *providers.Registry
}

func (g registrySpeech) Name() string { return "registry" }

func (g registrySpeech) Synthesize(ctx context.Context, req *providers.SpeechRequest) (*providers.SpeechResult, error) {
	client, err := g.registry.Speech()
	if err != nil {
		return nil, err
	}
	return client.Synthesize(ctx, req)
}
