package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"maripist/internal/logging"
	"maripist/internal/persona"

	"google.golang.org/genai"
)

// GeminiClient implements Client for the Google Gemini API via the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.0-flash",
		Timeout: 60 * time.Second,
	}
}

// NewGeminiClient creates a new Gemini client with default config.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	return NewGeminiClientWithConfig(DefaultGeminiConfig(apiKey))
}

// NewGeminiClientWithConfig creates a new Gemini client with custom config.
func NewGeminiClientWithConfig(config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, ErrNotConfigured
	}

	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Complete sends the transcript with a personality-derived system instruction
// and returns the single reply text. Assistant turns map to the "model" role.
func (c *GeminiClient) Complete(ctx context.Context, transcript []Turn, personality float64) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.CompletionDebug("[Gemini] Complete: model=%s turns=%d personality=%.2f", c.model, len(transcript), personality)

	if len(transcript) == 0 {
		return "", ErrNoTranscript
	}

	contents := make([]*genai.Content, 0, len(transcript))
	for _, turn := range transcript {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona.SystemPrompt(personality), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
	})
	if err != nil {
		logging.Get(logging.CategoryCompletion).Error("[Gemini] Complete failed: %v", err)
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	reply := strings.TrimSpace(result.Text())
	if reply == "" {
		logging.Get(logging.CategoryCompletion).Error("[Gemini] Complete: no completion returned")
		return "", ErrEmptyResponse
	}

	logging.Completion("[Gemini] Complete: completed in %v reply_len=%d", time.Since(startTime), len(reply))
	return reply, nil
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.model
}
