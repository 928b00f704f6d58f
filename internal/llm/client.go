// Package llm provides the LLM clients scribe uses for planning,
// drafting, and summarization.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scribe/internal/config"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider identifiers accepted by NewClient.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ErrNoAPIKey is returned when a provider requires a key and none is configured.
var ErrNoAPIKey = errors.New("llm api key is required")

// NewClient builds a Client from configuration.
func NewClient(cfg config.LLMConfig) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	timeout := 2 * time.Minute
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid llm timeout %q: %w", cfg.Timeout, err)
		}
		timeout = d
	}

	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiClientWithConfig(GeminiConfig{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Timeout:         timeout,
			MaxOutputTokens: cfg.MaxOutputTokens,
			MaxRetries:      cfg.MaxRetries,
		}), nil
	case ProviderOpenAI:
		return NewOpenAIClientWithConfig(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// retryable reports whether an HTTP status is worth retrying.
func retryable(status int) bool {
	return status == 429 || status >= 500
}

// backoffDelay returns the delay before the given retry attempt (0-based).
func backoffDelay(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
