// Package providers defines the capability interfaces over external
// text-generation and speech-synthesis services, and normalizes their
// failure modes into a single error taxonomy.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// TextGenerator is the capability interface for text generation.
// Implementations are selected by configuration, never by callers.
type TextGenerator interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Generate sends a generation request. Failures are always one of
	// AuthError, RateLimitError, ConnectionError, or ProviderError.
	Generate(ctx context.Context, req *TextRequest) (*TextResult, error)
}

// SpeechSynthesizer is the capability interface for speech synthesis.
type SpeechSynthesizer interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResult, error)
}

// TextRequest is a normalized text-generation request.
type TextRequest struct {
	// System is the optional system prompt.
	System string `json:"system,omitempty"`

	// Prompt is the user prompt.
	Prompt string `json:"prompt"`

	// Model overrides the client default when set.
	Model string `json:"model,omitempty"`

	// Generation parameters.
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"-"`

	// ResponseSchema requests structured JSON output conforming to the
	// given JSON Schema. The raw content is still returned; parsing and
	// validation happen in the caller.
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
}

// TextResult is the normalized response from a text generation call.
type TextResult struct {
	Content string `json:"content"`

	// Usage metadata.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// Provider info.
	Provider  string        `json:"provider"`
	ModelUsed string        `json:"model_used"`
	Duration  time.Duration `json:"duration"`
}

// SpeechRequest is a normalized speech-synthesis request.
type SpeechRequest struct {
	Text    string        `json:"text"`
	Voice   string        `json:"voice,omitempty"`
	Format  string        `json:"format,omitempty"` // "mp3" (default), "wav", "opus"
	Timeout time.Duration `json:"-"`
}

// SpeechResult is the normalized response from a synthesis call.
type SpeechResult struct {
	Audio    []byte        `json:"-"`
	Format   string        `json:"format"`
	Provider string        `json:"provider"`
	Duration time.Duration `json:"duration"`
}
