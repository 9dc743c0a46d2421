package completion

import (
	"fmt"
	"os"

	"maripist/internal/config"
)

// Provider represents an LLM provider.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // Optional model override
}

// DetectProvider checks config.json first, then environment variables.
// Priority: config.json > env vars (OPENAI > GEMINI).
func DetectProvider(cfg *config.UserConfig) (*ProviderConfig, error) {
	if cfg != nil {
		if provider, apiKey := cfg.GetActiveProvider(); apiKey != "" {
			return &ProviderConfig{
				Provider: Provider(provider),
				APIKey:   apiKey,
				Model:    cfg.Model,
			}, nil
		}
	}

	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{Provider: p.provider, APIKey: key}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; configure %s or set one of: OPENAI_API_KEY, GEMINI_API_KEY", config.DefaultUserConfigPath())
}

// NewClientFromConfig creates a completion client from user configuration.
func NewClientFromConfig(cfg *config.UserConfig) (Client, error) {
	if cfg == nil {
		cfg = &config.UserConfig{}
	}
	pc, err := DetectProvider(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.GetRequestTimeout()

	switch pc.Provider {
	case ProviderGemini:
		gc := DefaultGeminiConfig(pc.APIKey)
		gc.Timeout = timeout
		if pc.Model != "" {
			gc.Model = pc.Model
		}
		return NewGeminiClientWithConfig(gc)
	case ProviderOpenAI:
		oc := DefaultOpenAIConfig(pc.APIKey)
		oc.Timeout = timeout
		if pc.Model != "" {
			oc.Model = pc.Model
		}
		return NewOpenAIClientWithConfig(oc), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", pc.Provider)
	}
}
