// Package backend constructs the llm.Backend selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/backend/gemini"
	"github.com/papercomputeco/verity/pkg/backend/ollama"
	"github.com/papercomputeco/verity/pkg/backend/openai"
	"github.com/papercomputeco/verity/pkg/llm"
)

// Supported providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Default models per provider, used when Config.Model is empty.
var defaultModels = map[string]string{
	ProviderGemini: "gemini-1.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderOllama: "llama3.1",
}

// Config selects and configures the backing model. It is process-wide and
// read-only once the backend is built.
type Config struct {
	Provider string        `toml:"provider" validate:"required,oneof=gemini openai ollama"`
	Model    string        `toml:"model"`
	APIKey   string        `toml:"api_key"`
	BaseURL  string        `toml:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `toml:"timeout" validate:"gte=0"`
}

// Configuration failures. They are wrapped in a *ConfigError.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("api key missing")
)

// ConfigError reports a backend that cannot be built. Nothing is called
// until the configuration is fixed.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure %q backend: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// New builds the backend for cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (llm.Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider)
	}

	logger.Info("configuring llm backend",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Bool("key_present", cfg.APIKey != ""),
		zap.String("base_url", cfg.BaseURL),
	)

	var (
		b   llm.Backend
		err error
	)
	switch provider {
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, &ConfigError{Provider: provider, Err: ErrMissingAPIKey}
		}
		b, err = gemini.New(ctx, gemini.Config{
			APIKey:  cfg.APIKey,
			Model:   model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, &ConfigError{Provider: provider, Err: ErrMissingAPIKey}
		}
		b, err = openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			Model:   model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case ProviderOllama:
		b, err = ollama.New(ollama.Config{
			BaseURL: cfg.BaseURL,
			Model:   model,
			Timeout: cfg.Timeout,
		}, logger)
	default:
		return nil, &ConfigError{Provider: cfg.Provider, Err: ErrUnknownProvider}
	}
	if err != nil {
		return nil, &ConfigError{Provider: provider, Err: err}
	}

	return b, nil
}
