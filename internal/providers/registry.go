package providers

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds references to text generators and speech synthesizers.
// Providers are registered once at construction time from configuration;
// callers resolve them by capability, never by concrete type.
type Registry struct {
	mu            sync.RWMutex
	textClients   map[string]TextGenerator
	speechClients map[string]SpeechSynthesizer
	defaultText   string
	defaultSpeech string
	logger        *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		textClients:   make(map[string]TextGenerator),
		speechClients: make(map[string]SpeechSynthesizer),
		logger:        logger,
	}
}

// RegisterText registers a text generator by name.
func (r *Registry) RegisterText(name string, client TextGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textClients[name] = client
	if r.defaultText == "" {
		r.defaultText = name
	}
	r.logger.Info("registered text generator", "name", name)
}

// RegisterSpeech registers a speech synthesizer by name.
func (r *Registry) RegisterSpeech(name string, client SpeechSynthesizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speechClients[name] = client
	if r.defaultSpeech == "" {
		r.defaultSpeech = name
	}
	r.logger.Info("registered speech synthesizer", "name", name)
}

// SetDefaults selects the default provider per capability family.
func (r *Registry) SetDefaults(text, speech string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text != "" {
		r.defaultText = text
	}
	if speech != "" {
		r.defaultSpeech = speech
	}
}

// Text returns the default text generator.
func (r *Registry) Text() (TextGenerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.textClients[r.defaultText]
	if !ok {
		return nil, fmt.Errorf("no text generator configured")
	}
	return client, nil
}

// Speech returns the default speech synthesizer.
func (r *Registry) Speech() (SpeechSynthesizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.speechClients[r.defaultSpeech]
	if !ok {
		return nil, fmt.Errorf("no speech synthesizer configured")
	}
	return client, nil
}

// GetText returns a text generator by name.
func (r *Registry) GetText(name string) (TextGenerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.textClients[name]
	if !ok {
		return nil, fmt.Errorf("text generator not found: %s", name)
	}
	return client, nil
}

// GetSpeech returns a speech synthesizer by name.
func (r *Registry) GetSpeech(name string) (SpeechSynthesizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.speechClients[name]
	if !ok {
		return nil, fmt.Errorf("speech synthesizer not found: %s", name)
	}
	return client, nil
}

// ListText returns all registered text generator names.
func (r *Registry) ListText() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.textClients))
	for name := range r.textClients {
		names = append(names, name)
	}
	return names
}

// ListSpeech returns all registered speech synthesizer names.
func (r *Registry) ListSpeech() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.speechClients))
	for name := range r.speechClients {
		names = append(names, name)
	}
	return names
}

// HasText reports whether any text generator is registered.
func (r *Registry) HasText() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.textClients) > 0
}

// HasSpeech reports whether any speech synthesizer is registered.
func (r *Registry) HasSpeech() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.speechClients) > 0
}
