// Package config holds all Maripist configuration from .maripist/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// UserConfig holds ALL Maripist configuration from .maripist/config.json.
// This is the single source of truth for configuration.
//
// Supported models by provider:
//   - openai: gpt-4o-mini (default), gpt-4o, gpt-3.5-turbo
//   - gemini: gemini-2.0-flash (default), gemini-1.5-pro, gemini-1.5-flash
type UserConfig struct {
	// Provider selection (openai, gemini)
	Provider string `json:"provider,omitempty"`

	// API keys for each provider
	APIKey       string `json:"api_key,omitempty"`        // Legacy: single key
	OpenAIAPIKey string `json:"openai_api_key,omitempty"` // OpenAI
	GeminiAPIKey string `json:"gemini_api_key,omitempty"` // Google Gemini

	// Optional model override (see supported models above)
	Model string `json:"model,omitempty"`

	// Completion request timeout in seconds (default 60).
	// Applied by the client when the caller's context has no deadline.
	RequestTimeout int `json:"request_timeout,omitempty"`

	// Path to the message database. Defaults to <home>/messages.db.
	StorePath string `json:"store_path,omitempty"`

	// Owner of all personas and messages written by this installation.
	UserID string `json:"user_id,omitempty"`

	// Voice subsystem settings
	Voice VoiceConfig `json:"voice,omitempty"`

	// Logging configuration (mirrored by internal/logging)
	Logging LoggingConfig `json:"logging,omitempty"`
}

// VoiceConfig controls speech capture and playback.
type VoiceConfig struct {
	Enabled bool `json:"enabled,omitempty"`

	// Preferred synthesis voice, matched by exact name first.
	DefaultVoice string `json:"default_voice,omitempty"`

	// Language prefix used to pick a fallback voice (e.g. "en").
	LanguagePrefix string `json:"language_prefix,omitempty"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// DefaultHome returns the maripist home directory (~/.maripist).
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maripist"
	}
	return filepath.Join(home, ".maripist")
}

// DefaultUserConfigPath returns the default path to config.json.
func DefaultUserConfigPath() string {
	return filepath.Join(DefaultHome(), "config.json")
}

// Load reads configuration from the given path.
// A missing file yields an empty config, not an error.
func Load(path string) (*UserConfig, error) {
	cfg := &UserConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to the given path, creating the directory if needed.
func (c *UserConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}

// GetActiveProvider returns the provider and API key to use.
// Priority: explicit provider setting > first available key > env vars.
func (c *UserConfig) GetActiveProvider() (provider string, apiKey string) {
	if c.Provider != "" {
		switch c.Provider {
		case "openai":
			if key := c.openAIKey(); key != "" {
				return "openai", key
			}
		case "gemini":
			if key := c.geminiKey(); key != "" {
				return "gemini", key
			}
		}
	}

	if key := c.openAIKey(); key != "" {
		return "openai", key
	}
	if key := c.geminiKey(); key != "" {
		return "gemini", key
	}

	return "", ""
}

func (c *UserConfig) openAIKey() string {
	if c.OpenAIAPIKey != "" {
		return c.OpenAIAPIKey
	}
	if c.Provider == "openai" && c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (c *UserConfig) geminiKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	if c.Provider == "gemini" && c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// GetRequestTimeout returns the completion request timeout.
func (c *UserConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetStorePath returns the message database path.
func (c *UserConfig) GetStorePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	return filepath.Join(DefaultHome(), "messages.db")
}

// GetUserID returns the configured owner id, defaulting to "local".
func (c *UserConfig) GetUserID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return "local"
}

// GetLanguagePrefix returns the configured language prefix, defaulting to "en".
func (c *VoiceConfig) GetLanguagePrefix() string {
	if c.LanguagePrefix != "" {
		return c.LanguagePrefix
	}
	return "en"
}
