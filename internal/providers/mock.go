package providers

import (
	"context"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockTextGenerator is a TextGenerator for testing.
type MockTextGenerator struct {
	// Configurable behavior.
	Latency      time.Duration
	ResponseText string

	// FailuresBeforeSuccess makes the first N calls return FailWith
	// (or a ConnectionError if FailWith is nil), then succeed.
	FailuresBeforeSuccess int
	FailWith              error

	requestCount atomic.Int64
}

// NewMockTextGenerator creates a mock with sensible defaults.
func NewMockTextGenerator() *MockTextGenerator {
	return &MockTextGenerator{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockTextGenerator) Name() string { return MockName }

// Requests returns the number of Generate calls observed.
func (c *MockTextGenerator) Requests() int64 { return c.requestCount.Load() }

// Generate returns the configured response or failure.
func (c *MockTextGenerator) Generate(ctx context.Context, req *TextRequest) (*TextResult, error) {
	n := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, normalizeError(MockName, ctx.Err())
		case <-time.After(c.Latency):
		}
	}

	if int(n) <= c.FailuresBeforeSuccess {
		if c.FailWith != nil {
			return nil, c.FailWith
		}
		return nil, &ConnectionError{Provider: MockName, Message: "simulated connection failure"}
	}

	return &TextResult{
		Content:          c.ResponseText,
		PromptTokens:     len(req.Prompt) / 4,
		CompletionTokens: len(c.ResponseText) / 4,
		Provider:         MockName,
		ModelUsed:        "mock-model",
	}, nil
}

// MockSpeechSynthesizer is a SpeechSynthesizer for testing.
type MockSpeechSynthesizer struct {
	Latency time.Duration
	Audio   []byte

	FailuresBeforeSuccess int
	FailWith              error

	requestCount atomic.Int64
}

// NewMockSpeechSynthesizer creates a mock with sensible defaults.
func NewMockSpeechSynthesizer() *MockSpeechSynthesizer {
	return &MockSpeechSynthesizer{
		Latency: time.Millisecond,
		Audio:   []byte("mock-audio"),
	}
}

// Name returns the client identifier.
func (c *MockSpeechSynthesizer) Name() string { return MockName }

// Requests returns the number of Synthesize calls observed.
func (c *MockSpeechSynthesizer) Requests() int64 { return c.requestCount.Load() }

// Synthesize returns the configured audio or failure.
func (c *MockSpeechSynthesizer) Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResult, error) {
	n := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, normalizeError(MockName, ctx.Err())
		case <-time.After(c.Latency):
		}
	}

	if int(n) <= c.FailuresBeforeSuccess {
		if c.FailWith != nil {
			return nil, c.FailWith
		}
		return nil, &ConnectionError{Provider: MockName, Message: "simulated connection failure"}
	}

	format := req.Format
	if format == "" {
		format = "mp3"
	}

	return &SpeechResult{
		Audio:    c.Audio,
		Format:   format,
		Provider: MockName,
	}, nil
}

var (
	_ TextGenerator     = (*MockTextGenerator)(nil)
	_ SpeechSynthesizer = (*MockSpeechSynthesizer)(nil)
)
