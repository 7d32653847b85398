package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName              = "openai"
	openAIDefaultChatModel  = "gpt-4o-mini"
	openAIDefaultTimeout    = 120 * time.Second
	openAIDefaultMaxRetries = 0 // retry policy lives in the orchestrator
)

// OpenAIConfig holds configuration for the OpenAI text client.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	RateLimit  int           // Requests per minute
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements TextGenerator using the official OpenAI SDK.
type OpenAIClient struct {
	model   string
	limiter *RateLimiter
	client  openai.Client
}

// NewOpenAIClient creates a new OpenAI text generation client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = openAIDefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(openAIDefaultMaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RateLimit),
		client:  openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Generate sends a chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, req *TextRequest) (*TextResult, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, &ProviderError{Provider: OpenAIName, Message: "prompt is required"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, normalizeError(OpenAIName, err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	system := req.System
	if len(req.ResponseSchema) > 0 {
		// Structured output is requested via the prompt and validated
		// locally; OpenRouter-style native schema routing is not portable
		// across backends.
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON document conforming to this JSON Schema:\n" + string(req.ResponseSchema))
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: OpenAIName, Message: "empty choices in response"}
	}

	return &TextResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Provider:         OpenAIName,
		ModelUsed:        resp.Model,
		Duration:         time.Since(start),
	}, nil
}

// mapOpenAIError converts OpenAI SDK errors into the provider taxonomy.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		message := apiErr.Message
		if message == "" {
			message = fmt.Sprintf("status %d", apiErr.StatusCode)
		}
		return errorFromStatus(OpenAIName, apiErr.StatusCode, message, header)
	}
	return normalizeError(OpenAIName, err)
}

var _ TextGenerator = (*OpenAIClient)(nil)
