// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"fmt"
	"net/http"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// NewBackend returns the backend selected by cfg.Provider. A missing API key
// is a fatal configuration error.
func NewBackend(cfg types.LLMConfig) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key for llm provider %q", types.ErrFatalConfig, cfg.Provider)
	}
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case types.ProviderOpenAI, "":
		return &OpenAIBackend{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			UserAgent:   cfg.UserAgent,
			Client:      client,
			URL:         cfg.Endpoint,
		}, nil
	case types.ProviderAnthropic:
		return &AnthropicBackend{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			UserAgent:   cfg.UserAgent,
			Client:      client,
			URL:         cfg.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", types.ErrFatalConfig, cfg.Provider)
	}
}
