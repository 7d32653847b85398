package providers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAISpeechDefaultModel = openai.SpeechModelTTS1
	openAISpeechDefaultVoice = "onyx"
)

// OpenAISpeechConfig holds configuration for the OpenAI speech client.
type OpenAISpeechConfig struct {
	APIKey     string
	Model      string        // "tts-1" (default), "tts-1-hd", "gpt-4o-mini-tts"
	Voice      string        // "onyx" (default)
	Speed      float64       // 0.25-4.0
	RateLimit  int           // Requests per minute
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAISpeechClient implements SpeechSynthesizer using the official OpenAI SDK.
type OpenAISpeechClient struct {
	model   string
	voice   string
	speed   float64
	limiter *RateLimiter
	client  openai.Client
}

// NewOpenAISpeechClient creates a new OpenAI speech synthesis client.
func NewOpenAISpeechClient(cfg OpenAISpeechConfig) *OpenAISpeechClient {
	if cfg.Model == "" {
		cfg.Model = openAISpeechDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAISpeechDefaultVoice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
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

	return &OpenAISpeechClient{
		model:   cfg.Model,
		voice:   cfg.Voice,
		speed:   cfg.Speed,
		limiter: NewRateLimiter(cfg.RateLimit),
		client:  openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAISpeechClient) Name() string {
	return OpenAIName
}

// Synthesize converts text to audio using the OpenAI speech API.
func (c *OpenAISpeechClient) Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResult, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, &ProviderError{Provider: OpenAIName, Message: "text is required"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, normalizeError(OpenAIName, err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.voice
	}

	format := normalizeSpeechFormat(req.Format)
	params := openai.AudioSpeechNewParams{
		Input:          strings.TrimSpace(req.Text),
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
		Speed:          openai.Float(c.speed),
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Provider: OpenAIName, Message: "failed reading audio response", Err: err}
	}

	return &SpeechResult{
		Audio:    audio,
		Format:   string(format),
		Provider: OpenAIName,
		Duration: time.Since(start),
	}, nil
}

func normalizeSpeechFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	case "aac":
		return openai.AudioSpeechNewParamsResponseFormatAAC
	default:
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

var _ SpeechSynthesizer = (*OpenAISpeechClient)(nil)
