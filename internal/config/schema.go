package config

import "time"

// Config holds bindery configuration.
// Stored at: {home}/config.yaml
type Config struct {
	TextProviders   map[string]ProviderCfg `mapstructure:"text_providers" yaml:"text_providers"`
	SpeechProviders map[string]ProviderCfg `mapstructure:"speech_providers" yaml:"speech_providers"`
	Defaults        DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
	Pipeline        PipelineCfg            `mapstructure:"pipeline" yaml:"pipeline"`
	JobTypes        map[string][]string    `mapstructure:"job_types" yaml:"job_types,omitempty"`
	Server          ServerCfg              `mapstructure:"server" yaml:"server"`
	Ingest          IngestCfg              `mapstructure:"ingest" yaml:"ingest"`
}

// ProviderCfg configures one provider backend.
type ProviderCfg struct {
	Type    string `mapstructure:"type" yaml:"type"`       // "openai", "mock"
	Model   string `mapstructure:"model" yaml:"model"`     // Model name
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Voice     string `mapstructure:"voice" yaml:"voice,omitempty"`   // Speech synthesis only
	Format    string `mapstructure:"format" yaml:"format,omitempty"` // Speech synthesis only
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"`   // Requests per minute
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections and queue behavior.
type DefaultsCfg struct {
	TextProvider   string `mapstructure:"text_provider" yaml:"text_provider"`
	SpeechProvider string `mapstructure:"speech_provider" yaml:"speech_provider"`
	MaxWorkers     int    `mapstructure:"max_workers" yaml:"max_workers"`
	Priority       string `mapstructure:"priority" yaml:"priority"`
}

// PipelineCfg tunes orchestration and retry behavior.
type PipelineCfg struct {
	MaxAttempts         int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffBase         time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	RetryProviderErrors bool          `mapstructure:"retry_provider_errors" yaml:"retry_provider_errors"`
	FixedPageSize       int           `mapstructure:"fixed_page_size" yaml:"fixed_page_size"`
	RetentionDays       int           `mapstructure:"retention_days" yaml:"retention_days"`
}

// ServerCfg holds the HTTP listener settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// IngestCfg controls automatic ingestion.
type IngestCfg struct {
	WatchInbox bool `mapstructure:"watch_inbox" yaml:"watch_inbox"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TextProviders: map[string]ProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 60,
				Enabled:   true,
			},
		},
		SpeechProviders: map[string]ProviderCfg{
			"openai": {
				Type:      "openai",
				APIKey:    "${OPENAI_API_KEY}",
				Voice:     "alloy",
				Format:    "mp3",
				RateLimit: 30,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			TextProvider:   "openai",
			SpeechProvider: "openai",
			MaxWorkers:     2,
			Priority:       "normal",
		},
		Pipeline: PipelineCfg{
			MaxAttempts:   3,
			BackoffBase:   2 * time.Second,
			RetentionDays: 30,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8841,
		},
		Ingest: IngestCfg{
			WatchInbox: true,
		},
	}
}

// GetTextProvider returns a text provider config by name.
func (c *Config) GetTextProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.TextProviders[name]
	return cfg, ok
}

// GetSpeechProvider returns a speech provider config by name.
func (c *Config) GetSpeechProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.SpeechProviders[name]
	return cfg, ok
}

// EnabledTextProviders returns all enabled text providers.
func (c *Config) EnabledTextProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.TextProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledSpeechProviders returns all enabled speech providers.
func (c *Config) EnabledSpeechProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.SpeechProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
